package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: go run main.go <export|restore> <org_id> [snapshot_key]")
		fmt.Println("Example: go run main.go export demo-org")
		fmt.Println("Example: go run main.go restore demo-org snapshots/demo-org/20250819T120000Z.json")
		os.Exit(1)
	}

	action := os.Args[1]
	orgID := os.Args[2]
	key := ""
	if len(os.Args) > 3 {
		key = os.Args[3]
	}

	var path string
	switch action {
	case "export":
		path = "/admin/snapshot"
	case "restore":
		path = "/admin/snapshot/restore"
	default:
		fmt.Printf("Error: unknown action %q (want export or restore)\n", action)
		os.Exit(1)
	}

	secret := os.Getenv("ADMIN_JWT_SECRET")
	if secret == "" {
		fmt.Println("Error: ADMIN_JWT_SECRET environment variable not set")
		os.Exit(1)
	}

	apiURL := os.Getenv("API_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}

	// Generate JWT token
	claims := jwt.RegisteredClaims{
		Subject:   "admin",
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(secret))
	if err != nil {
		fmt.Printf("Error signing token: %v\n", err)
		os.Exit(1)
	}

	payload, _ := json.Marshal(map[string]string{"org_id": orgID, "key": key})

	url := apiURL + path
	fmt.Printf("Running %s for org %s...\n", action, orgID)
	fmt.Printf("URL: %s\n", url)

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		fmt.Printf("Error creating request: %v\n", err)
		os.Exit(1)
	}
	req.Header.Set("Authorization", "Bearer "+tokenString)
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Printf("Error making request: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		fmt.Printf("Error: HTTP %d\n", resp.StatusCode)
		fmt.Printf("Response: %s\n", string(body))
		os.Exit(1)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(body, &result); err != nil {
		fmt.Printf("Response: %s\n", string(body))
	} else {
		prettyJSON, _ := json.MarshalIndent(result, "", "  ")
		fmt.Printf("Success!\n%s\n", string(prettyJSON))
	}
}
