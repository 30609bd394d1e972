package jwtkit

import (
	"context"
	"crypto/rsa"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

func newSigner(t *testing.T, kid string) *RSASigner {
	t.Helper()
	s, err := NewRSASigner(2048, kid)
	if err != nil {
		t.Fatalf("gen key: %v", err)
	}
	return s
}

func keystoreOf(t *testing.T, signers ...*RSASigner) *Keystore {
	t.Helper()
	pubs := make(map[string]*rsa.PublicKey, len(signers))
	for _, s := range signers {
		pubs[s.KID()] = s.PublicKey()
	}
	ks, err := KeystoreFromRSA(pubs)
	if err != nil {
		t.Fatalf("keystore: %v", err)
	}
	return ks
}

func signToken(t *testing.T, s Signer, extra jwt.MapClaims) string {
	t.Helper()
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": "user-123",
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
	for k, v := range extra {
		claims[k] = v
	}
	tok, err := s.Sign(context.Background(), claims)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}
