package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

type CatalogFile struct {
	OrgID   string        `json:"org_id"`
	OrgName string        `json:"org_name"`
	Intents []IntentEntry `json:"intents"`
	Aliases []AliasEntry  `json:"aliases"`
}

type IntentEntry struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Examples    []string `json:"examples"`
}

type AliasEntry struct {
	Alias  string `json:"alias"`
	Intent string `json:"intent"`
}

type IntentRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Examples    []string `json:"examples"`
}

type AliasRequest struct {
	Alias string `json:"alias"`
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run scripts/seed-intents.go <catalog-file.json>")
		fmt.Println("Example: go run scripts/seed-intents.go testdata/sample-intents.json")
		os.Exit(1)
	}

	apiURL := os.Getenv("API_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}

	catalogFile := os.Args[1]

	fmt.Printf("🌱 Seeding Intent Catalog\n")
	fmt.Printf("============================\n")
	fmt.Printf("API URL: %s\n", apiURL)
	fmt.Printf("Catalog file: %s\n\n", catalogFile)

	data, err := os.ReadFile(catalogFile)
	if err != nil {
		fmt.Printf("❌ Error reading file: %v\n", err)
		os.Exit(1)
	}

	var catalog CatalogFile
	if err := json.Unmarshal(data, &catalog); err != nil {
		fmt.Printf("❌ Error parsing JSON: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Org: %s (%s)\n", catalog.OrgName, catalog.OrgID)
	fmt.Printf("Intents to register: %d\n\n", len(catalog.Intents))

	ctx := context.Background()
	client := &http.Client{Timeout: 60 * time.Second}

	registered := 0
	for i, entry := range catalog.Intents {
		fmt.Printf("📦 Intent %d/%d: %s (%d examples)...\n", i+1, len(catalog.Intents), entry.Name, len(entry.Examples))

		payload, err := json.Marshal(IntentRequest{
			Name:        entry.Name,
			Description: entry.Description,
			Examples:    entry.Examples,
		})
		if err != nil {
			fmt.Printf("   ❌ Error marshaling request: %v\n", err)
			continue
		}

		url := fmt.Sprintf("%s/v1/intents", apiURL)
		if !postJSON(ctx, client, url, catalog.OrgID, payload) {
			continue
		}
		registered++
	}

	for _, entry := range catalog.Aliases {
		fmt.Printf("🔗 Alias %s -> %s...\n", entry.Alias, entry.Intent)

		payload, err := json.Marshal(AliasRequest{Alias: entry.Alias})
		if err != nil {
			fmt.Printf("   ❌ Error marshaling request: %v\n", err)
			continue
		}

		url := fmt.Sprintf("%s/v1/intents/%s/aliases", apiURL, entry.Intent)
		postJSON(ctx, client, url, catalog.OrgID, payload)
	}

	fmt.Printf("\n✅ Done: %d/%d intents registered\n", registered, len(catalog.Intents))
	fmt.Println("\nTry a classification:")
	fmt.Printf("  curl -X POST %s/v1/classify -H 'X-Org-Id: %s' \\\n", apiURL, catalog.OrgID)
	fmt.Printf("    -H 'Content-Type: application/json' -d '{\"query\":\"%s\"}'\n", firstExample(catalog))
}

func postJSON(ctx context.Context, client *http.Client, url, orgID string, payload []byte) bool {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		fmt.Printf("   ❌ Error creating request: %v\n", err)
		return false
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Org-Id", orgID)

	resp, err := client.Do(httpReq)
	if err != nil {
		fmt.Printf("   ❌ Error sending request: %v\n", err)
		return false
	}

	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode >= 300 {
		fmt.Printf("   ❌ HTTP %d: %s\n", resp.StatusCode, string(body))
		return false
	}
	fmt.Printf("   ✅ OK\n")
	return true
}

func firstExample(catalog CatalogFile) string {
	for _, entry := range catalog.Intents {
		if len(entry.Examples) > 0 {
			return entry.Examples[0]
		}
	}
	return "hello"
}
