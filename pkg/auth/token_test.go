package auth

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"testing"
	"time"
)

// makeJWT builds an unsigned JWT carrying the given claims. Expired only reads the exp claim, so
// the signature is junk.
func makeJWT(t *testing.T, claims map[string]interface{}) string {
	t.Helper()
	header, err := json.Marshal(map[string]string{"alg": "RS256", "typ": "JWT"})
	if err != nil {
		t.Fatal(err)
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		t.Fatal(err)
	}
	return fmt.Sprintf("%s.%s.x",
		base64.RawURLEncoding.EncodeToString(header),
		base64.RawURLEncoding.EncodeToString(payload))
}

func TestAuthHeader(t *testing.T) {
	token := Token{TokenType: "Bearer", IDToken: "abcdef"}
	if header := token.AuthHeader(); header != "Bearer abcdef" {
		t.Errorf("AuthHeader() = %q", header)
	}
}

func TestExpired(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		token   Token
		expired bool
	}{
		{
			name:    "valid without claim",
			token:   Token{IDToken: "not-a-jwt", ExpiresAt: now.Add(time.Hour)},
			expired: false,
		},
		{
			name:    "stored expiry passed",
			token:   Token{IDToken: "not-a-jwt", ExpiresAt: now.Add(-time.Minute)},
			expired: true,
		},
		{
			name: "claim earlier than stored expiry",
			token: Token{
				IDToken:   makeJWT(t, map[string]interface{}{"exp": now.Add(-time.Minute).Unix()}),
				ExpiresAt: now.Add(time.Hour),
			},
			expired: true,
		},
		{
			name: "claim later than stored expiry",
			token: Token{
				IDToken:   makeJWT(t, map[string]interface{}{"exp": now.Add(2 * time.Hour).Unix()}),
				ExpiresAt: now.Add(time.Hour),
			},
			expired: false,
		},
		{
			name: "no exp claim",
			token: Token{
				IDToken:   makeJWT(t, map[string]interface{}{"sub": "user"}),
				ExpiresAt: now.Add(time.Hour),
			},
			expired: false,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if expired := test.token.Expired(); expired != test.expired {
				t.Errorf("Expired() = %v, want %v", expired, test.expired)
			}
		})
	}
}
