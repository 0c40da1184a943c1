// Package main runs E2E tests of the intent resolution API against a
// live server.
//
// Scenarios cover:
//   - Intent CRUD mechanics (create, list, update, alias, delete)
//   - Clear-query classification against a seeded catalog
//   - Threshold-forced fallback engagement
//   - Off-domain query handling through the fallback ladder
//   - Tenant isolation (an empty org never sees another org's intents)
//   - Async classification jobs (enqueue then poll)
//   - Chain-of-thought reasoning
//   - Admin snapshot export/restore round trip
//
// Usage:
//
//	API_BASE_URL=... go run scripts/e2e/run_e2e.go                 # runs all
//	API_BASE_URL=... go run scripts/e2e/run_e2e.go clear-match     # runs one
//	ADMIN_JWT_SECRET=... enables the snapshot-roundtrip scenario
package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Constants
// ---------------------------------------------------------------------------

const (
	maxWaitSecs  = 45
	pollInterval = 2 * time.Second
)

var (
	apiBase   string
	jwtSecret string
	jwt       string
	orgID     string
	seeded    bool
)

// ---------------------------------------------------------------------------
// Scenario definition
// ---------------------------------------------------------------------------

type scenario struct {
	Name string
	Fn   func(t *T)
}

// T is a lightweight test context for a single scenario.
type T struct {
	passed  int
	failed  int
	skipped bool
	name    string
}

func (t *T) check(name string, ok bool) {
	if ok {
		fmt.Printf("    PASS: %s\n", name)
		t.passed++
	} else {
		fmt.Printf("    FAIL: %s\n", name)
		t.failed++
	}
}

func (t *T) fatalf(format string, args ...interface{}) {
	fmt.Printf("    FATAL: "+format+"\n", args...)
	t.failed++
}

func (t *T) skipf(format string, args ...interface{}) {
	fmt.Printf("    SKIP: "+format+"\n", args...)
	t.skipped = true
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// call sends a JSON request scoped to org and decodes the JSON response.
// Admin paths carry the bearer token instead of the org header.
func call(method, path, org string, payload interface{}) (int, map[string]interface{}, error) {
	var body *bytes.Reader
	if payload != nil {
		raw, _ := json.Marshal(payload)
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, apiBase+path, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.HasPrefix(path, "/admin/") {
		req.Header.Set("Authorization", "Bearer "+jwt)
	} else if org != "" {
		req.Header.Set("X-Org-Id", org)
	}

	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	var decoded map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp.StatusCode, decoded, nil
}

func createIntent(org, name, description string, examples []string) (int, error) {
	status, _, err := call("POST", "/v1/intents", org, map[string]interface{}{
		"name":        name,
		"description": description,
		"examples":    examples,
	})
	return status, err
}

// ensureCatalog seeds the shared org with a small catalog once per run.
func ensureCatalog(t *T) bool {
	if seeded {
		return true
	}
	catalog := []struct {
		name        string
		description string
		examples    []string
	}{
		{"billing_question", "Questions about invoices, charges, and payment methods", []string{
			"Where can I find my latest invoice?",
			"How do I update my payment method?",
			"Why was I charged twice this month?",
		}},
		{"cancel_subscription", "Requests to cancel a subscription or close an account", []string{
			"I want to cancel my subscription",
			"How do I close my account and stop billing?",
		}},
		{"technical_support", "Reports of errors, outages, and broken functionality", []string{
			"The dashboard will not load after I sign in",
			"I keep getting a 500 error from the API",
		}},
	}
	for _, c := range catalog {
		status, err := createIntent(orgID, c.name, c.description, c.examples)
		if err != nil {
			t.fatalf("seed %s: %v", c.name, err)
			return false
		}
		if status != http.StatusCreated {
			t.fatalf("seed %s: HTTP %d", c.name, status)
			return false
		}
	}
	seeded = true
	return true
}

func classify(org, query string, threshold float64) (int, map[string]interface{}, error) {
	payload := map[string]interface{}{"query": query}
	if threshold > 0 {
		payload["threshold"] = threshold
	}
	return call("POST", "/v1/classify", org, payload)
}

func str(m map[string]interface{}, key string) string {
	v, _ := m[key].(string)
	return v
}

func num(m map[string]interface{}, key string) float64 {
	v, _ := m[key].(float64)
	return v
}

func obj(m map[string]interface{}, key string) map[string]interface{} {
	v, _ := m[key].(map[string]interface{})
	return v
}

func arr(m map[string]interface{}, key string) []map[string]interface{} {
	raw, ok := m[key].([]interface{})
	if !ok {
		return nil
	}
	var out []map[string]interface{}
	for _, e := range raw {
		if mm, ok := e.(map[string]interface{}); ok {
			out = append(out, mm)
		}
	}
	return out
}

// countStrings counts plain-string elements under key, since examples
// and clarification questions decode as []interface{} of strings.
func countStrings(m map[string]interface{}, key string) int {
	raw, ok := m[key].([]interface{})
	if !ok {
		return 0
	}
	n := 0
	for _, e := range raw {
		if _, ok := e.(string); ok {
			n++
		}
	}
	return n
}

func knownLevel(level string) bool {
	switch level {
	case "request_clarification", "generalized_intent", "partial_extraction", "explicit_handoff":
		return true
	}
	return false
}

func generateJWT(secret string) string {
	header := base64url(map[string]string{"alg": "HS256", "typ": "JWT"})
	now := time.Now()
	payload := base64url(map[string]interface{}{
		"sub": "admin",
		"iat": now.Unix(),
		"exp": now.Add(12 * time.Hour).Unix(),
	})
	unsigned := header + "." + payload
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(unsigned))
	sig := strings.TrimRight(base64.URLEncoding.EncodeToString(mac.Sum(nil)), "=")
	return unsigned + "." + sig
}

func base64url(v interface{}) string {
	b, _ := json.Marshal(v)
	return strings.TrimRight(base64.URLEncoding.EncodeToString(b), "=")
}

// ---------------------------------------------------------------------------
// Scenarios
// ---------------------------------------------------------------------------

// 1. Intent CRUD mechanics on a dedicated org.
func scenarioIntentCRUD(t *T) {
	crudOrg := orgID + "-crud"

	status, created, err := call("POST", "/v1/intents", crudOrg, map[string]interface{}{
		"name":        "plan_upgrade",
		"description": "Requests to move to a higher plan",
		"examples":    []string{"I want to upgrade to the pro plan", "How much is the enterprise tier?"},
	})
	if err != nil {
		t.fatalf("create: %v", err)
		return
	}
	t.check("create returns 201", status == http.StatusCreated)
	t.check("create echoes the name", str(created, "name") == "plan_upgrade")

	status, listed, err := call("GET", "/v1/intents", crudOrg, nil)
	if err != nil {
		t.fatalf("list: %v", err)
		return
	}
	t.check("list returns 200", status == http.StatusOK)
	t.check("list contains the intent", len(arr(listed, "intents")) == 1)

	status, updated, err := call("PUT", "/v1/intents/plan_upgrade", crudOrg, map[string]interface{}{
		"name":        "plan_upgrade",
		"description": "Requests to move to a higher plan",
		"examples":    []string{"I want to upgrade to the pro plan", "How much is the enterprise tier?", "Can you bump me up to the business plan?"},
	})
	if err != nil {
		t.fatalf("update: %v", err)
		return
	}
	t.check("update returns 200", status == http.StatusOK)
	t.check("update grows the examples", countStrings(updated, "examples") == 3)

	status, alias, err := call("POST", "/v1/intents/plan_upgrade/aliases", crudOrg, map[string]interface{}{"alias": "upgrade_plan"})
	if err != nil {
		t.fatalf("alias: %v", err)
		return
	}
	t.check("alias returns 201", status == http.StatusCreated)
	t.check("alias resolves to canonical name", str(alias, "intent") == "plan_upgrade")

	status, _, err = call("DELETE", "/v1/intents/plan_upgrade", crudOrg, nil)
	if err != nil {
		t.fatalf("delete: %v", err)
		return
	}
	t.check("delete returns 204", status == http.StatusNoContent)

	status, listed, err = call("GET", "/v1/intents", crudOrg, nil)
	if err != nil {
		t.fatalf("list after delete: %v", err)
		return
	}
	t.check("list is empty after delete", status == http.StatusOK && len(arr(listed, "intents")) == 0)
}

// 2. A near-verbatim example query resolves to its intent.
func scenarioClearMatch(t *T) {
	if !ensureCatalog(t) {
		return
	}

	status, res, err := classify(orgID, "where can I find my most recent invoice", 0)
	if err != nil {
		t.fatalf("classify: %v", err)
		return
	}
	if status != http.StatusOK {
		t.fatalf("classify: HTTP %d", status)
		return
	}

	result := obj(res, "result")
	top := obj(result, "top_match")
	t.check("top match is billing_question", str(top, "intent") == "billing_question")
	t.check("confidence is meaningful", num(top, "confidence") > 0.5)
	t.check("action proceeds", str(result, "recommended_action") == "proceed" || str(result, "recommended_action") == "proceed_with_caution")

	matches := arr(result, "matches")
	t.check("matches are present", len(matches) > 0)
	if len(matches) > 1 {
		t.check("matches sorted by confidence", num(matches[0], "confidence") >= num(matches[len(matches)-1], "confidence"))
	}
}

// 3. An unreachable threshold forces the fallback ladder to engage.
func scenarioForcedFallback(t *T) {
	if !ensureCatalog(t) {
		return
	}

	status, res, err := classify(orgID, "how do I change my payment method", 0.99)
	if err != nil {
		t.fatalf("classify: %v", err)
		return
	}
	if status != http.StatusOK {
		t.fatalf("classify: HTTP %d", status)
		return
	}

	fb := obj(res, "fallback")
	if fb == nil {
		t.fatalf("no fallback in response")
		return
	}
	level := str(fb, "level")
	t.check("fallback level is a known tier", knownLevel(level))
	if level == "request_clarification" {
		t.check("clarification offers choices", len(arr(fb, "alternatives")) > 0 || countStrings(fb, "clarification_questions") > 0)
	}
}

// 4. An off-domain query still produces a structured fallback outcome.
func scenarioUnknownQuery(t *T) {
	if !ensureCatalog(t) {
		return
	}

	status, res, err := classify(orgID, "what is the airspeed velocity of an unladen swallow", 0)
	if err != nil {
		t.fatalf("classify: %v", err)
		return
	}
	if status != http.StatusOK {
		t.fatalf("classify: HTTP %d", status)
		return
	}

	result := obj(res, "result")
	fb := obj(res, "fallback")
	action := str(result, "recommended_action")
	engaged := fb != nil || action == "clarify" || action == "no_match" || action == "fallback"
	t.check("ladder engages or asks for clarification", engaged)
	if fb != nil {
		t.check("fallback level is a known tier", knownLevel(str(fb, "level")))
		t.check("fallback carries a reason", str(fb, "reason") != "")
	}
}

// 5. An org with no intents never sees another org's catalog.
func scenarioTenantIsolation(t *T) {
	if !ensureCatalog(t) {
		return
	}

	status, res, err := classify(orgID+"-empty", "where can I find my most recent invoice", 0)
	if err != nil {
		t.fatalf("classify: %v", err)
		return
	}
	if status != http.StatusOK {
		t.fatalf("classify: HTTP %d", status)
		return
	}

	result := obj(res, "result")
	t.check("no matches leak across orgs", len(arr(result, "matches")) == 0)
	t.check("fallback engages for the empty org", obj(res, "fallback") != nil)
}

// 6. Async classification: enqueue then poll until the job completes.
func scenarioAsyncJob(t *T) {
	if !ensureCatalog(t) {
		return
	}

	status, res, err := call("POST", "/v1/classify/async", orgID, map[string]interface{}{
		"query": "I keep getting signed out of the dashboard",
	})
	if err != nil {
		t.fatalf("enqueue: %v", err)
		return
	}
	if status == http.StatusServiceUnavailable {
		t.skipf("async classification not configured")
		return
	}
	t.check("enqueue returns 202", status == http.StatusAccepted)

	jobID := str(res, "jobId")
	if jobID == "" {
		t.fatalf("no job id in response")
		return
	}

	deadline := time.Now().Add(maxWaitSecs * time.Second)
	var job map[string]interface{}
	for time.Now().Before(deadline) {
		time.Sleep(pollInterval)
		status, job, err = call("GET", "/v1/jobs/"+jobID, orgID, nil)
		if err != nil || status != http.StatusOK {
			continue
		}
		if s := str(job, "status"); s == "completed" || s == "failed" {
			break
		}
	}

	t.check("job completes", str(job, "status") == "completed")
	t.check("job keeps its tenant", str(job, "tenant_id") == orgID)
	t.check("job carries a result", obj(job, "result") != nil)
}

// 7. Chain-of-thought reasoning produces steps and a conclusion.
func scenarioReasoning(t *T) {
	if !ensureCatalog(t) {
		return
	}

	status, res, err := call("POST", "/v1/reason", orgID, map[string]interface{}{
		"query": "I was charged twice this month and want the duplicate refunded",
	})
	if err != nil {
		t.fatalf("reason: %v", err)
		return
	}
	if status == http.StatusServiceUnavailable {
		t.skipf("reasoning not configured")
		return
	}
	if status != http.StatusOK {
		t.fatalf("reason: HTTP %d", status)
		return
	}

	t.check("reasoning yields steps", len(arr(res, "steps")) > 0)
	t.check("conclusion is present", str(res, "conclusion") != "")
	conf := num(res, "confidence")
	t.check("confidence is bounded", conf >= 0 && conf <= 1)
}

// 8. Admin snapshot export and restore round trip.
func scenarioSnapshotRoundTrip(t *T) {
	if jwtSecret == "" {
		t.skipf("ADMIN_JWT_SECRET not set")
		return
	}
	if !ensureCatalog(t) {
		return
	}

	status, exported, err := call("POST", "/admin/snapshot", "", map[string]interface{}{"org_id": orgID})
	if err != nil {
		t.fatalf("export: %v", err)
		return
	}
	if status == http.StatusServiceUnavailable {
		t.skipf("snapshot archive not configured")
		return
	}
	if status != http.StatusOK {
		t.fatalf("export: HTTP %d", status)
		return
	}

	key := str(exported, "key")
	t.check("export returns a key", key != "")
	count := num(exported, "intents")
	t.check("export covers the catalog", count >= 3)

	status, restored, err := call("POST", "/admin/snapshot/restore", "", map[string]interface{}{"org_id": orgID, "key": key})
	if err != nil {
		t.fatalf("restore: %v", err)
		return
	}
	t.check("restore returns 200", status == http.StatusOK)
	t.check("restore keeps the intent count", num(restored, "intents") == count)
}

// ---------------------------------------------------------------------------
// Main
// ---------------------------------------------------------------------------

func main() {
	apiBase = os.Getenv("API_BASE_URL")
	if apiBase == "" {
		fmt.Fprintln(os.Stderr, "ERROR: API_BASE_URL required")
		os.Exit(1)
	}
	jwtSecret = os.Getenv("ADMIN_JWT_SECRET")
	if jwtSecret != "" {
		jwt = generateJWT(jwtSecret)
	}

	// A fresh org per run keeps scenarios independent of earlier state.
	orgID = fmt.Sprintf("e2e-%d", time.Now().Unix())

	scenarios := []scenario{
		{"intent-crud", scenarioIntentCRUD},
		{"clear-match", scenarioClearMatch},
		{"forced-fallback", scenarioForcedFallback},
		{"unknown-query", scenarioUnknownQuery},
		{"tenant-isolation", scenarioTenantIsolation},
		{"async-job", scenarioAsyncJob},
		{"reasoning", scenarioReasoning},
		{"snapshot-roundtrip", scenarioSnapshotRoundTrip},
	}

	// Filter by name if argument provided
	filter := ""
	if len(os.Args) > 1 {
		filter = os.Args[1]
	}

	totalPassed := 0
	totalFailed := 0
	scenarioResults := make([]string, 0)

	for _, s := range scenarios {
		if filter != "" && s.Name != filter {
			continue
		}

		fmt.Printf("\n========================================\n")
		fmt.Printf("SCENARIO: %s\n", s.Name)
		fmt.Printf("========================================\n")

		t := &T{name: s.Name}
		s.Fn(t)

		totalPassed += t.passed
		totalFailed += t.failed

		status := "✅"
		if t.failed > 0 {
			status = "❌"
		} else if t.skipped && t.passed == 0 {
			status = "⏭️"
		}
		scenarioResults = append(scenarioResults, fmt.Sprintf("  %s %s (%d passed, %d failed)", status, s.Name, t.passed, t.failed))
	}

	fmt.Printf("\n========================================\n")
	fmt.Println("SUMMARY")
	fmt.Printf("========================================\n")
	for _, r := range scenarioResults {
		fmt.Println(r)
	}
	fmt.Printf("\nTotal: %d passed, %d failed\n", totalPassed, totalFailed)

	if totalFailed > 0 {
		fmt.Println("\n❌ SOME TESTS FAILED")
		os.Exit(1)
	}
	fmt.Println("\n✅ ALL TESTS PASSED")
}
