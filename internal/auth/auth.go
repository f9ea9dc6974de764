// Package auth provides token verification and the authenticated principal
// bound to a connection. Token issuance is out of scope; this package only
// consumes credentials.
package auth

import (
	"net/http"
	"time"

	"github.com/real-rm/chatrelay/internal/constants"
	"github.com/real-rm/chatrelay/internal/util"
)

// Info represents the authenticated principal for one connection.
// Values are copied, never shared mutably across connections.
type Info struct {
	UserID    string
	SessionID string
	ExpiresAt time.Time
}

// Expired reports whether the principal's credential has lapsed at the given time.
func (i Info) Expired(now time.Time) bool {
	return i.ExpiresAt.Before(now)
}

// TokenVerifier verifies a credential and yields the principal it encodes.
// Implementations must be safe for concurrent use.
type TokenVerifier interface {
	Verify(credential string) (*Info, error)
}

// CredentialFromRequest extracts a credential from connection setup.
// The access_token query parameter takes precedence over the
// Authorization header when both are present.
func CredentialFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get(constants.QueryAccessToken); token != "" {
		return token
	}
	if token, err := util.ExtractBearerToken(r.Header.Get(constants.HeaderAuthorization)); err == nil {
		return token
	}
	return ""
}
