package jwtkit

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
)

// ServeJWKS writes the public keystore as a JWKS document.
func ServeJWKS(w http.ResponseWriter, r *http.Request, ks *Keystore) {
	// Marshal first to compute a stable ETag and set cache headers
	b, err := ks.MarshalJSON()
	if err != nil {
		http.Error(w, "keystore unavailable", http.StatusInternalServerError)
		return
	}
	sum := sha256.Sum256(b)
	etag := "\"" + hex.EncodeToString(sum[:]) + "\""

	// Conditional GET support
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=300, must-revalidate")
	w.Header().Set("ETag", etag)
	_, _ = w.Write(b)
}
