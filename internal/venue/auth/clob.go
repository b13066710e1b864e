// Package auth implements the two venues' request-signing algorithms.
// The surrounding REST/WS wire protocols are out of scope (spec.md
// Non-goals: venue wire-protocol details); only the signing primitives
// themselves are implemented, as the contract other packages call.
package auth

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"
)

// LoadRSAPrivateKey reads a PEM-encoded RSA private key, trying PKCS8
// then falling back to PKCS1. Grounded on
// sdibella-kalshi-btc15m/internal/kalshi/auth.go's LoadPrivateKey.
func LoadRSAPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("auth: read private key: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("auth: no PEM block found in %s", path)
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("auth: private key is not RSA")
		}
		return rsaKey, nil
	}

	rsaKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("auth: parse private key (tried PKCS8 and PKCS1): %w", err)
	}
	return rsaKey, nil
}

// SignRequest produces the RSA-PSS/SHA-256 signature the signed-header
// venue requires over timestampMs+method+path, base64-encoded.
func SignRequest(privateKey *rsa.PrivateKey, timestampMs, method, path string) (string, error) {
	message := timestampMs + method + path
	hash := sha256.Sum256([]byte(message))

	sig, err := rsa.SignPSS(rand.Reader, privateKey, crypto.SHA256, hash[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return "", fmt.Errorf("auth: sign request: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Headers builds the three signed headers the venue expects on every
// authenticated REST/WS request.
func Headers(apiKeyID string, privateKey *rsa.PrivateKey, timestampMs, method, path string) (map[string]string, error) {
	sig, err := SignRequest(privateKey, timestampMs, method, path)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"access-key":       apiKeyID,
		"access-timestamp": timestampMs,
		"access-signature": sig,
	}, nil
}
