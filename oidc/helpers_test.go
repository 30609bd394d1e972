package oidckit

import (
	"context"
	"testing"
	"time"

	jwtkit "github.com/PaulFidika/oidcgate/jwt"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

type testKeys struct {
	signer *jwtkit.RSASigner
	holder *jwtkit.KeystoreHolder
}

func newTestKeys(t *testing.T) testKeys {
	t.Helper()
	s, err := jwtkit.NewRSASigner(2048, "test-key")
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	ks, err := s.Keystore()
	if err != nil {
		t.Fatalf("keystore: %v", err)
	}
	return testKeys{signer: s, holder: jwtkit.NewKeystoreHolder(ks)}
}

// mint signs claims and returns the token plus its decoded payload.
func (k testKeys) mint(t *testing.T, claims jwt.MapClaims) (string, Claims) {
	t.Helper()
	tok, err := k.signer.Sign(context.Background(), claims)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	decoded, err := DecodeClaims(tok)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return tok, decoded
}

func quietLogger() (*logrus.Logger, *test.Hook) {
	l, hook := test.NewNullLogger()
	l.SetLevel(logrus.DebugLevel)
	return l, hook
}

func fixedNow(ts time.Time) func() time.Time { return func() time.Time { return ts } }
