// Package main is a development utility for generating the secrets the server
// reads from the environment: the session token signing secret and the
// certificate MAC key. It prints ready-to-export shell lines so developers can
// bring up a local instance without inventing weak keys by hand. Do not reuse
// generated values across environments; rotate them through your secret
// manager in production.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"
)

func randomKey(bytes int) string {
	raw := make([]byte, bytes)
	if _, err := rand.Read(raw); err != nil {
		log.Fatal(err)
	}
	return base64.RawURLEncoding.EncodeToString(raw)
}

func main() {
	fmt.Println("==========================================================")
	fmt.Println("EdLedger Secrets Generated")
	fmt.Println("==========================================================")
	fmt.Println()
	fmt.Printf("export EDL_JWT_SECRET=%s\n", randomKey(48))
	fmt.Printf("export CERT_MAC_KEY=%s\n", randomKey(48))
	fmt.Println()
	fmt.Println("==========================================================")
	fmt.Println("Both values must stay stable across restarts: rotating the")
	fmt.Println("JWT secret invalidates open sessions, and rotating the MAC")
	fmt.Println("key makes previously issued certificates verify as tampered.")
	fmt.Println("==========================================================")
}
