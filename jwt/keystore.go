package jwtkit

import (
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

var (
	// ErrKeyNotFound is returned when no key in the keystore carries the requested kid.
	ErrKeyNotFound = errors.New("jwtkit: key not found")
	// ErrEmptyKeystore is returned when a source produced a set without keys.
	ErrEmptyKeystore = errors.New("jwtkit: keystore has no keys")
)

// Keystore is an immutable snapshot of public verification keys indexed by kid.
// Private material present in the source set is dropped on construction.
type Keystore struct {
	set  jwk.Set
	kids []string
}

// NewKeystore builds a snapshot from a JWK set. Every key must carry a kid.
func NewKeystore(set jwk.Set) (*Keystore, error) {
	if set == nil || set.Len() == 0 {
		return nil, ErrEmptyKeystore
	}
	pub, err := jwk.PublicSetOf(set)
	if err != nil {
		return nil, fmt.Errorf("derive public keys: %w", err)
	}
	kids := make([]string, 0, pub.Len())
	seen := make(map[string]struct{}, pub.Len())
	for i := 0; i < pub.Len(); i++ {
		k, _ := pub.Key(i)
		kid := k.KeyID()
		if kid == "" {
			return nil, fmt.Errorf("jwtkit: key %d has no kid", i)
		}
		if _, dup := seen[kid]; dup {
			return nil, fmt.Errorf("jwtkit: duplicate kid %q", kid)
		}
		seen[kid] = struct{}{}
		kids = append(kids, kid)
	}
	sort.Strings(kids)
	return &Keystore{set: pub, kids: kids}, nil
}

// ParseKeystore parses a JWKS document or a single JWK.
func ParseKeystore(b []byte) (*Keystore, error) {
	set, err := jwk.Parse(b)
	if err != nil {
		return nil, fmt.Errorf("parse jwks: %w", err)
	}
	return NewKeystore(set)
}

// KeystoreFromRSA builds a keystore from a kid -> RSA public key map.
func KeystoreFromRSA(pubs map[string]*rsa.PublicKey) (*Keystore, error) {
	set := jwk.NewSet()
	for kid, pub := range pubs {
		k, err := jwk.FromRaw(pub)
		if err != nil {
			return nil, fmt.Errorf("convert key %s: %w", kid, err)
		}
		_ = k.Set(jwk.KeyIDKey, kid)
		_ = k.Set(jwk.KeyUsageKey, "sig")
		_ = k.Set(jwk.AlgorithmKey, jwa.RS256)
		if err := set.AddKey(k); err != nil {
			return nil, fmt.Errorf("add key %s: %w", kid, err)
		}
	}
	return NewKeystore(set)
}

// Resolve returns the key whose kid matches exactly.
func (ks *Keystore) Resolve(kid string) (jwk.Key, error) {
	if ks == nil || kid == "" {
		return nil, ErrKeyNotFound
	}
	k, ok := ks.set.LookupKeyID(kid)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
	}
	return k, nil
}

// KeyIDs returns the sorted key identifiers in the snapshot.
func (ks *Keystore) KeyIDs() []string {
	if ks == nil {
		return nil
	}
	return append([]string(nil), ks.kids...)
}

// Len returns the number of keys.
func (ks *Keystore) Len() int {
	if ks == nil {
		return 0
	}
	return len(ks.kids)
}

// MarshalJSON renders the public JWKS document.
func (ks *Keystore) MarshalJSON() ([]byte, error) {
	if ks == nil {
		return []byte(`{"keys":[]}`), nil
	}
	return json.Marshal(ks.set)
}

// KeystoreHolder publishes keystore snapshots to concurrent readers.
// Readers Load once per verification; writers replace the whole snapshot.
type KeystoreHolder struct {
	p atomic.Pointer[Keystore]
}

// NewKeystoreHolder returns a holder seeded with ks.
func NewKeystoreHolder(ks *Keystore) *KeystoreHolder {
	h := &KeystoreHolder{}
	h.p.Store(ks)
	return h
}

// Keystore returns the current snapshot.
func (h *KeystoreHolder) Keystore() *Keystore { return h.p.Load() }

// Store swaps in a new snapshot. Nil snapshots are ignored.
func (h *KeystoreHolder) Store(ks *Keystore) {
	if ks == nil {
		return
	}
	h.p.Store(ks)
}
