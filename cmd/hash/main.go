// Package main is a utility for generating bcrypt hashes of passwords. The
// platform stores only bcrypt hashes of account passwords, so this tool is
// used when manually seeding the first system owner account in the database
// without running the full server. Pass the password as the single argument.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/edledger/edledger/internal/auth"
)

func main() {
	if len(os.Args) != 2 {
		log.Fatalf("usage: %s <password>", os.Args[0])
	}

	hash, err := auth.HashPassword(os.Args[1])
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(hash)
}
