// Package main is a smoke-test utility that verifies the API is reachable and
// returning valid responses. It hits the health endpoint and attempts a login
// with credentials from the environment, printing status codes and bodies,
// making it useful for quick post-deployment checks without needing external
// tooling like curl or a full integration test suite.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
)

func main() {
	base := os.Getenv("EDLEDGER_URL")
	if base == "" {
		base = "http://localhost:8080"
	}

	resp, err := http.Get(base + "/healthz")
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	fmt.Printf("GET /healthz: %d\n%s\n", resp.StatusCode, string(body))

	email := os.Getenv("EDLEDGER_EMAIL")
	password := os.Getenv("EDLEDGER_PASSWORD")
	if email == "" || password == "" {
		fmt.Println("EDLEDGER_EMAIL / EDLEDGER_PASSWORD not set, skipping login check")
		return
	}

	payload, _ := json.Marshal(map[string]string{"email": email, "password": password})
	resp, err = http.Post(base+"/api/v1/login", "application/json", bytes.NewReader(payload))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, _ = io.ReadAll(resp.Body)
	fmt.Printf("POST /api/v1/login: %d\n", resp.StatusCode)
	if resp.StatusCode != http.StatusOK {
		fmt.Printf("Response:\n%s\n", string(body))
		os.Exit(1)
	}
	fmt.Println("Login OK")
}
