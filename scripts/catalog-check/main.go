// Package main implements a catalog-driven classification checker.
//
// It pulls an org's intent catalog from the API and classifies every
// registered example back against it: each example should resolve to
// the intent that owns it. Misses usually mean overlapping intents or
// examples that belong elsewhere.
//
// Usage:
//
//	go run scripts/catalog-check/main.go --org=<orgID> [--api=URL] [--min=0.8]
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Catalog types
// ---------------------------------------------------------------------------

type IntentDef struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Examples    []string `json:"examples"`
}

type Catalog struct {
	Intents []IntentDef `json:"intents"`
}

// ---------------------------------------------------------------------------
// Result types
// ---------------------------------------------------------------------------

type IntentResult struct {
	Name     string
	Examples int
	Hits     int
	MeanConf float64
	Misses   []string
}

func (r IntentResult) Accuracy() float64 {
	if r.Examples == 0 {
		return 0
	}
	return float64(r.Hits) / float64(r.Examples)
}

// ---------------------------------------------------------------------------
// Globals
// ---------------------------------------------------------------------------

var (
	flagOrg string
	flagAPI string
	flagMin float64
)

func init() {
	flag.StringVar(&flagOrg, "org", "", "Organization ID (required)")
	flag.StringVar(&flagAPI, "api", "http://localhost:8080", "API base URL")
	flag.Float64Var(&flagMin, "min", 0.8, "Minimum per-intent accuracy before the run fails")
}

// ---------------------------------------------------------------------------
// API helpers
// ---------------------------------------------------------------------------

func fetchCatalog(orgID string) (*Catalog, error) {
	req, _ := http.NewRequest("GET", flagAPI+"/v1/intents", nil)
	req.Header.Set("X-Org-Id", orgID)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("catalog returned %d: %s", resp.StatusCode, string(body))
	}
	var cat Catalog
	if err := json.NewDecoder(resp.Body).Decode(&cat); err != nil {
		return nil, err
	}
	return &cat, nil
}

// classifyExample returns the top intent name and its confidence.
func classifyExample(orgID, query string) (string, float64, error) {
	payload, _ := json.Marshal(map[string]string{"query": query})
	req, _ := http.NewRequest("POST", flagAPI+"/v1/classify", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Org-Id", orgID)

	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(resp.Body)
		return "", 0, fmt.Errorf("classify returned %d: %s", resp.StatusCode, string(body))
	}

	var decoded struct {
		Result struct {
			TopMatch *struct {
				Intent     string  `json:"intent"`
				Confidence float64 `json:"confidence"`
			} `json:"top_match"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", 0, err
	}
	if decoded.Result.TopMatch == nil {
		return "", 0, nil
	}
	return decoded.Result.TopMatch.Intent, decoded.Result.TopMatch.Confidence, nil
}

// ---------------------------------------------------------------------------
// Report
// ---------------------------------------------------------------------------

func printReport(orgID string, results []IntentResult) {
	fmt.Printf("\n%s\n", strings.Repeat("=", 90))
	fmt.Printf("CATALOG CHECK: %s\n", orgID)
	fmt.Printf("%s\n", strings.Repeat("=", 90))
	fmt.Printf("%-30s %10s %10s %10s %12s\n", "INTENT", "EXAMPLES", "HITS", "ACCURACY", "MEAN CONF")
	fmt.Println(strings.Repeat("-", 90))

	totalExamples := 0
	totalHits := 0
	for _, r := range results {
		totalExamples += r.Examples
		totalHits += r.Hits
		fmt.Printf("%-30s %10d %10d %9.0f%% %12.2f\n",
			truncate(r.Name, 30), r.Examples, r.Hits, r.Accuracy()*100, r.MeanConf)
	}
	fmt.Println(strings.Repeat("-", 90))
	fmt.Printf("TOTAL: %d/%d examples resolve to their own intent\n\n", totalHits, totalExamples)

	hasFailures := false
	for _, r := range results {
		for _, miss := range r.Misses {
			if !hasFailures {
				fmt.Println("MISS DETAILS:")
				fmt.Println(strings.Repeat("-", 60))
				hasFailures = true
			}
			fmt.Printf("  ❌ %s: %s\n", r.Name, miss)
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

// ---------------------------------------------------------------------------
// Main
// ---------------------------------------------------------------------------

func main() {
	flag.Parse()

	if flagOrg == "" {
		fmt.Fprintln(os.Stderr, "ERROR: --org is required")
		os.Exit(1)
	}

	fmt.Printf("Fetching intent catalog for org %s...\n", flagOrg)
	cat, err := fetchCatalog(flagOrg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR fetching catalog: %v\n", err)
		os.Exit(1)
	}
	if len(cat.Intents) == 0 {
		fmt.Fprintln(os.Stderr, "ERROR: catalog has no intents")
		os.Exit(1)
	}

	fmt.Printf("Intents: %d\n", len(cat.Intents))
	fmt.Printf("Minimum accuracy: %.0f%%\n", flagMin*100)

	// Sort intents for deterministic output
	sort.Slice(cat.Intents, func(i, j int) bool { return cat.Intents[i].Name < cat.Intents[j].Name })

	results := make([]IntentResult, 0, len(cat.Intents))

	for idx, def := range cat.Intents {
		fmt.Printf("[%d/%d] Checking: %s (%d examples)\n", idx+1, len(cat.Intents), def.Name, len(def.Examples))

		r := IntentResult{Name: def.Name, Examples: len(def.Examples)}
		confSum := 0.0

		for _, example := range def.Examples {
			got, conf, err := classifyExample(flagOrg, example)
			if err != nil {
				r.Misses = append(r.Misses, fmt.Sprintf("%q: %v", truncate(example, 50), err))
				fmt.Printf("  ❌ %q: %v\n", truncate(example, 50), err)
				continue
			}
			confSum += conf
			if got == def.Name {
				r.Hits++
				fmt.Printf("  ✅ %q (%.2f)\n", truncate(example, 50), conf)
			} else {
				r.Misses = append(r.Misses, fmt.Sprintf("%q resolved to %q (%.2f)", truncate(example, 50), got, conf))
				fmt.Printf("  ❌ %q resolved to %q (%.2f)\n", truncate(example, 50), got, conf)
			}
		}

		if r.Examples > 0 {
			r.MeanConf = confSum / float64(r.Examples)
		}
		results = append(results, r)
	}

	printReport(flagOrg, results)

	failed := false
	for _, r := range results {
		if r.Accuracy() < flagMin {
			failed = true
			fmt.Printf("❌ %s below minimum accuracy (%.0f%% < %.0f%%)\n", r.Name, r.Accuracy()*100, flagMin*100)
		}
	}
	if failed {
		os.Exit(1)
	}
	fmt.Println("✅ CATALOG CONSISTENT")
}
