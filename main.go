package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
)

// generateSecret creates a random 256-bit secret for signing auth tokens.
func generateSecret() []byte {
	secret := make([]byte, 32) // 32 bytes = 256 bits
	if _, err := rand.Read(secret); err != nil {
		log.Fatalf("Unable to generate secret: %v", err)
	}
	return secret
}

func main() {
	// Generate and display the auth secret.
	secret := generateSecret()
	fmt.Println("Generated auth secret (hex):", hex.EncodeToString(secret))
}
