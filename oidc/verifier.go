package oidckit

import (
	"errors"
	"fmt"

	jwtkit "github.com/PaulFidika/oidcgate/jwt"
	jwt "github.com/golang-jwt/jwt/v5"
)

var claimsParser = jwt.NewParser()

// DecodeClaims decodes the payload segment of a compact token without
// verifying it. The result must only be trusted after Policy.Evaluate
// accepts the same token.
func DecodeClaims(token string) (Claims, error) {
	mc := jwt.MapClaims{}
	_, _, err := claimsParser.ParseUnverified(token, mc)
	// An alg golang-jwt does not implement still decodes; the signature
	// verifier decides whether it is acceptable.
	if err != nil && !errors.Is(err, jwt.ErrTokenUnverifiable) {
		return nil, fmt.Errorf("%w: %w", jwtkit.ErrMalformedToken, err)
	}
	return Claims(mc), nil
}
