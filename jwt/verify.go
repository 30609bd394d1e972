package jwtkit

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
)

// ErrSignatureInvalid wraps every reason a token fails authentication.
var ErrSignatureInvalid = errors.New("jwtkit: signature verification failed")

// Verify authenticates the complete compact token (header, payload and
// signature) against the key selected by the header kid.
func Verify(token string, ks *Keystore) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic during verification: %v", ErrSignatureInvalid, r)
		}
	}()

	token = strings.TrimSpace(token)
	h, err := DecodeHeader(token)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSignatureInvalid, err)
	}
	key, err := ks.Resolve(h.Kid)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSignatureInvalid, err)
	}

	var alg jwa.SignatureAlgorithm
	if err := alg.Accept(h.Alg); err != nil {
		return fmt.Errorf("%w: unsupported alg %q", ErrSignatureInvalid, h.Alg)
	}
	if alg == jwa.NoSignature {
		return fmt.Errorf("%w: alg none is not accepted", ErrSignatureInvalid)
	}
	if ka := key.Algorithm().String(); ka != "" && ka != alg.String() {
		return fmt.Errorf("%w: alg %s does not match key %s (%s)", ErrSignatureInvalid, alg, h.Kid, ka)
	}

	if _, err := jws.Verify([]byte(token), jws.WithKey(alg, key)); err != nil {
		return fmt.Errorf("%w: %w", ErrSignatureInvalid, err)
	}
	return nil
}
