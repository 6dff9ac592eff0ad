// Command keygen prints a new API key and the bcrypt hash to list under
// api.api_key_hashes.
package main

import (
	"fmt"
	"os"

	"github.com/sungwon/mailqueue/internal/auth"
)

func main() {
	key, err := auth.GenerateAPIKey()
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate key: %v\n", err)
		os.Exit(1)
	}
	hash, err := auth.HashAPIKey(key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hash key: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("key:  %s\nhash: %s\n", key, hash)
}
