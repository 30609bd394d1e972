package jwtkit

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

func joseJWKS(t *testing.T, keys ...jose.JSONWebKey) []byte {
	t.Helper()
	b, err := json.Marshal(jose.JSONWebKeySet{Keys: keys})
	if err != nil {
		t.Fatalf("marshal jwks: %v", err)
	}
	return b
}

func TestKeystore_Resolve(t *testing.T) {
	a := newSigner(t, "a")
	b := newSigner(t, "b")
	ks := keystoreOf(t, b, a)

	if got := ks.KeyIDs(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("kids: got %v", got)
	}
	k, err := ks.Resolve("a")
	if err != nil {
		t.Fatalf("resolve a: %v", err)
	}
	if k.KeyID() != "a" {
		t.Errorf("resolved wrong key %q", k.KeyID())
	}
	if _, err := ks.Resolve("c"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("want ErrKeyNotFound, got %v", err)
	}
	if _, err := ks.Resolve(""); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("empty kid: want ErrKeyNotFound, got %v", err)
	}
}

func TestKeystore_NilIsEmpty(t *testing.T) {
	var ks *Keystore
	if ks.Len() != 0 {
		t.Fatal("nil keystore should be empty")
	}
	if _, err := ks.Resolve("a"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("want ErrKeyNotFound, got %v", err)
	}
}

func TestParseKeystore_JoseInterop(t *testing.T) {
	pk, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("gen key: %v", err)
	}
	doc := joseJWKS(t, jose.JSONWebKey{Key: &pk.PublicKey, KeyID: "jose-1", Algorithm: "RS256", Use: "sig"})

	ks, err := ParseKeystore(doc)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	k, err := ks.Resolve("jose-1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if k.Algorithm().String() != "RS256" {
		t.Errorf("alg: got %q", k.Algorithm().String())
	}
}

func TestParseKeystore_StripsPrivateMaterial(t *testing.T) {
	pk, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("gen key: %v", err)
	}
	doc := joseJWKS(t, jose.JSONWebKey{Key: pk, KeyID: "priv", Algorithm: "RS256", Use: "sig"})
	if !strings.Contains(string(doc), `"d":`) {
		t.Fatal("fixture should contain private exponent")
	}

	ks, err := ParseKeystore(doc)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	out, err := ks.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(out), `"d":`) {
		t.Fatalf("private exponent leaked: %s", out)
	}
}

func TestNewKeystore_Rejects(t *testing.T) {
	if _, err := NewKeystore(jwk.NewSet()); !errors.Is(err, ErrEmptyKeystore) {
		t.Errorf("empty set: want ErrEmptyKeystore, got %v", err)
	}

	pk, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("gen key: %v", err)
	}
	if _, err := ParseKeystore(joseJWKS(t, jose.JSONWebKey{Key: &pk.PublicKey, Algorithm: "RS256"})); err == nil {
		t.Error("key without kid should be rejected")
	}
	dup := joseJWKS(t,
		jose.JSONWebKey{Key: &pk.PublicKey, KeyID: "same", Algorithm: "RS256"},
		jose.JSONWebKey{Key: &pk.PublicKey, KeyID: "same", Algorithm: "RS256"},
	)
	if _, err := ParseKeystore(dup); err == nil {
		t.Error("duplicate kids should be rejected")
	}
	if _, err := ParseKeystore([]byte("{not json")); err == nil {
		t.Error("garbage should be rejected")
	}
}

func TestKeystoreHolder_Swap(t *testing.T) {
	a := keystoreOf(t, newSigner(t, "a"))
	b := keystoreOf(t, newSigner(t, "b"))
	h := NewKeystoreHolder(a)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				ks := h.Keystore()
				if ks.Len() != 1 {
					t.Errorf("observed partial snapshot with %d keys", ks.Len())
					return
				}
			}
		}()
	}
	h.Store(b)
	h.Store(nil)
	wg.Wait()

	if got := h.Keystore().KeyIDs(); len(got) != 1 || got[0] != "b" {
		t.Fatalf("want snapshot b, got %v", got)
	}
}
