package authgin

import (
	"github.com/gin-gonic/gin"
)

// UserView is a unified view of the caller for handlers that do not care
// which strategy admitted the request.
type UserView struct {
	Subject  string   `json:"sub"`
	Issuer   string   `json:"iss,omitempty"`
	Audience []string `json:"aud,omitempty"`
	Strategy string   `json:"strategy"`

	// Credentials is whatever the strategy's validator attached.
	Credentials any `json:"credentials,omitempty"`
}

// CurrentUser returns the authenticated caller, or false when Authenticate
// did not run or rejected the request.
func CurrentUser(c *gin.Context) (UserView, bool) {
	cl, ok := ClaimsFromGin(c)
	if !ok {
		return UserView{}, false
	}
	creds, _ := CredentialsFromGin(c)
	return UserView{
		Subject:     cl.Subject(),
		Issuer:      cl.Issuer(),
		Audience:    cl.Strings("aud"),
		Strategy:    c.GetString(StrategyKey),
		Credentials: creds,
	}, true
}
