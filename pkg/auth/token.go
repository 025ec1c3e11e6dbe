package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token holds the bearer credentials returned by the authentication service.
//
// The DroneMobile API authenticates requests with the ID token; the access and refresh tokens are
// retained for the token lifecycle. ExpiresAt already includes the safety margin applied when the
// token was issued.
type Token struct {
	AccessToken  string    `json:"access_token"`
	IDToken      string    `json:"id_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// AuthHeader returns the value of the Authorization header for API requests.
func (t *Token) AuthHeader() string {
	return t.TokenType + " " + t.IDToken
}

// Expired returns true if the token should no longer be used to authenticate requests.
//
// The stored expiry is cross-checked against the exp claim of the ID token itself, since a token
// file written by an older client may carry a stale or fabricated expiry. The earlier of the two
// wins. The JWT signature is not verified; the claim is only used to avoid sending requests the
// server is guaranteed to reject.
func (t *Token) Expired() bool {
	expiry := t.ExpiresAt
	if claimed, ok := t.claimedExpiry(); ok && claimed.Before(expiry) {
		expiry = claimed
	}
	return !time.Now().Before(expiry)
}

func (t *Token) claimedExpiry() (time.Time, bool) {
	var claims jwt.RegisteredClaims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(t.IDToken, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
