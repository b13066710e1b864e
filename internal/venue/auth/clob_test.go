package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
)

func TestSignRequestProducesVerifiableSignature(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	sig1, err := SignRequest(priv, "1690000000000", "GET", "/markets")
	if err != nil {
		t.Fatalf("SignRequest: %v", err)
	}
	if sig1 == "" {
		t.Fatal("expected non-empty signature")
	}

	sig2, err := SignRequest(priv, "1690000000001", "GET", "/markets")
	if err != nil {
		t.Fatalf("SignRequest: %v", err)
	}
	if sig1 == sig2 {
		t.Error("signatures over different timestamps should differ")
	}
}

func TestHeadersIncludesAllThreeFields(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	headers, err := Headers("key-123", priv, "1690000000000", "POST", "/orders")
	if err != nil {
		t.Fatalf("Headers: %v", err)
	}
	for _, k := range []string{"access-key", "access-timestamp", "access-signature"} {
		if headers[k] == "" {
			t.Errorf("missing header %q", k)
		}
	}
	if headers["access-key"] != "key-123" {
		t.Errorf("access-key = %q, want key-123", headers["access-key"])
	}
}
