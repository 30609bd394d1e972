package authhttp

import (
	"net/http"

	jwtkit "github.com/PaulFidika/oidcgate/jwt"
)

// JWKSHandler serves the current public keystore.
func JWKSHandler(holder *jwtkit.KeystoreHolder) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jwtkit.ServeJWKS(w, r, holder.Keystore())
	})
}
