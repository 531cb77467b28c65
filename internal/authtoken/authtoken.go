// Package authtoken mints and verifies the signed provisioning tokens
// internal/adminapi hands out as a client's auth_token. internal/
// registration verifies a token against this package exactly once, at
// REGISTER admission (§4.3's auth.token_secret mechanism); once a
// client_id is registered, every other operation compares the stored
// auth_token verbatim (§4.1) and never parses it again.
package authtoken

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims names the client_id (and, for operator convenience, the
// room_id) a provisioning token scopes its bearer to.
type Claims struct {
	ClientID string `json:"client_id"`
	RoomID   string `json:"room_id"`
	jwt.RegisteredClaims
}

// Mint signs a provisioning token for clientID, scoped to roomID, valid
// for ttl.
func Mint(secret []byte, clientID, roomID string, ttl time.Duration) (string, time.Time, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)
	claims := Claims{
		ClientID: clientID,
		RoomID:   roomID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	return signed, expiresAt, err
}

// Verify reports whether token is a signature-valid, unexpired
// provisioning token naming clientID.
func Verify(secret []byte, clientID, token string) bool {
	if len(secret) == 0 || token == "" {
		return false
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return secret, nil
	})
	if err != nil || parsed == nil || !parsed.Valid {
		return false
	}
	claims, ok := parsed.Claims.(*Claims)
	return ok && claims.ClientID == clientID
}
