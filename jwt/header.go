package jwtkit

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	jwt "github.com/golang-jwt/jwt/v5"
)

// ErrMalformedToken is returned when the protected header cannot be decoded.
var ErrMalformedToken = errors.New("jwtkit: malformed token")

// Header is the protected JOSE header of a compact token. It is untrusted
// until the signature has been verified.
type Header struct {
	Typ string `json:"typ,omitempty"`
	Alg string `json:"alg"`
	Kid string `json:"kid,omitempty"`
}

var segmentParser = jwt.NewParser(jwt.WithPaddingAllowed())

// DecodeHeader decodes the first segment of a compact token without looking
// at the payload or signature.
func DecodeHeader(token string) (Header, error) {
	token = strings.TrimSpace(token)
	seg, _, found := strings.Cut(token, ".")
	if !found || seg == "" {
		return Header{}, fmt.Errorf("%w: missing header segment", ErrMalformedToken)
	}
	raw, err := segmentParser.DecodeSegment(seg)
	if err != nil {
		return Header{}, fmt.Errorf("%w: header is not base64url: %v", ErrMalformedToken, err)
	}
	var h Header
	if err := json.Unmarshal(raw, &h); err != nil {
		return Header{}, fmt.Errorf("%w: header is not json: %v", ErrMalformedToken, err)
	}
	return h, nil
}
