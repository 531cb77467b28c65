package registration

import (
	"crypto/subtle"

	"github.com/screenbroker/broker/internal/authtoken"
)

// CredentialSource is the admission check REGISTER runs once, before a
// brand-new or reclaiming client_id may create a persistent record
// (§6 "auth: token_secret, optional static api_keys"). This is what
// distinguishes a legitimate identity reclaim (§4.3's duplicate note:
// "the session-level eviction ... handles a second socket claiming the
// same registered identity") from an unprovisioned guess at a token:
// only a client_id/auth_token pair that checks out here is allowed to
// proceed to Create/Update. Once a client is registered, every other
// operation authenticates against its own stored auth_token verbatim
// (§4.1) and never calls back into this interface.
type CredentialSource interface {
	Verify(clientID, authToken string) bool
}

// StaticCredentials checks auth_token against the configured
// client_id:token pairs (auth.api_keys) first, falling back to a
// token_secret-signed provisioning token naming the same client_id
// (the shape internal/adminapi mints via internal/authtoken).
type StaticCredentials struct {
	apiKeys     map[string]string
	tokenSecret []byte
}

// NewStaticCredentials builds a CredentialSource from the broker's
// configured auth.api_keys pairs and auth.token_secret. Either may be
// empty; a deployment using only provisioning tokens leaves apiKeys
// nil, and one using only static keys leaves tokenSecret empty.
func NewStaticCredentials(apiKeys map[string]string, tokenSecret string) StaticCredentials {
	return StaticCredentials{apiKeys: apiKeys, tokenSecret: []byte(tokenSecret)}
}

func (c StaticCredentials) Verify(clientID, authToken string) bool {
	if want, ok := c.apiKeys[clientID]; ok {
		return subtle.ConstantTimeCompare([]byte(want), []byte(authToken)) == 1
	}
	return authtoken.Verify(c.tokenSecret, clientID, authToken)
}
