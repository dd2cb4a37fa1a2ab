package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/snowbridge-labs/analyst-gateway/internal/auth"
	"github.com/snowbridge-labs/analyst-gateway/internal/keys"
)

func main() {
	apiKey := flag.String("api-key", "", "hash an API key for config.yaml instead of generating an RSA key pair")
	out := flag.String("out", "rsa_key", "output path prefix for the key pair (<out>.p8 and <out>.pub)")
	bits := flag.Int("bits", 2048, "RSA key size in bits")
	flag.Parse()

	if *apiKey != "" {
		hash := auth.HashAPIKey(*apiKey)
		fmt.Printf("API Key: %s\n", *apiKey)
		fmt.Printf("SHA-256 Hash: %s\n", hash)
		fmt.Println("\nAdd this to your config.yaml:")
		fmt.Printf("  api_keys:\n")
		fmt.Printf("    - key_hash: \"%s\"\n", hash)
		fmt.Printf("      description: \"Generated key\"\n")
		return
	}

	if err := generateKeyPair(*out, *bits); err != nil {
		fmt.Fprintf(os.Stderr, "keygen: %v\n", err)
		os.Exit(1)
	}
}

func generateKeyPair(out string, bits int) error {
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return fmt.Errorf("generating key: %w", err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return fmt.Errorf("encoding private key: %w", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})
	privPath := out + ".p8"
	if err := os.WriteFile(privPath, privPEM, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", privPath, err)
	}

	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return fmt.Errorf("encoding public key: %w", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	pubPath := out + ".pub"
	if err := os.WriteFile(pubPath, pubPEM, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", pubPath, err)
	}

	fingerprint, err := keys.Fingerprint(&key.PublicKey)
	if err != nil {
		return err
	}

	// ALTER USER wants the base64 body without the PEM armor.
	body := strings.TrimSpace(string(pubPEM))
	body = strings.TrimPrefix(body, "-----BEGIN PUBLIC KEY-----")
	body = strings.TrimSuffix(body, "-----END PUBLIC KEY-----")
	body = strings.ReplaceAll(strings.TrimSpace(body), "\n", "")

	fmt.Printf("Private key: %s\n", privPath)
	fmt.Printf("Public key:  %s\n", pubPath)
	fmt.Printf("Fingerprint: SHA256:%s\n", fingerprint)
	fmt.Println("\nRegister the public key with:")
	fmt.Printf("  ALTER USER <user> SET RSA_PUBLIC_KEY='%s';\n", body)
	fmt.Println("\nThen point the gateway at the private key:")
	fmt.Printf("  snowflake:\n")
	fmt.Printf("    private_key_path: \"%s\"\n", privPath)
	return nil
}
