// Package main is a diagnostic tool for testing database connectivity and
// inspecting live compliance data. It connects to the database, summarizes the
// organizations and audit_entries tables, and prints the result to stdout. The
// binary exits with a non-zero code on any failure so it can be embedded in
// CI/CD pipeline steps to gate deployments on a reachable, populated database.
package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "github.com/lib/pq"
)

func main() {
	dbPassword := os.Getenv("DATABASE_PASSWORD")
	if dbPassword == "" {
		dbPassword = "edledger"
	}

	connStr := fmt.Sprintf("host=localhost port=5432 user=edledger password=%s dbname=edledger sslmode=disable", dbPassword)
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer db.Close()

	fmt.Println("=== ORGANIZATIONS ===")
	rows, err := db.Query("SELECT id, name, active FROM organizations ORDER BY created_at")
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, name string
		var active bool
		if err := rows.Scan(&id, &name, &active); err != nil {
			log.Printf("Warning: failed to scan organization row: %v", err)
			continue
		}
		fmt.Printf("Organization: %s (ID: %s, active: %v)\n", name, id, active)
	}

	fmt.Println("\n=== LEDGER ===")
	rows2, err := db.Query("SELECT organization_id, action, COUNT(*) FROM audit_entries GROUP BY organization_id, action ORDER BY organization_id, action")
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	defer rows2.Close()

	count := 0
	for rows2.Next() {
		var orgID, action string
		var n int
		if err := rows2.Scan(&orgID, &action, &n); err != nil {
			log.Printf("Warning: failed to scan ledger summary row: %v", err)
			continue
		}
		fmt.Printf("Org %s: %d %s entries\n", orgID, n, action)
		count += n
	}

	if count == 0 {
		fmt.Println("No ledger entries found!")
	}
}
