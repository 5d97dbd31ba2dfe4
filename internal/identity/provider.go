// Package identity talks to the identity provider's admin API and builds
// the in-memory username index used by the consistency checks.
package identity

import (
	"context"
	"encoding/base32"
	"strings"
)

// User is an identity-provider user record.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Enabled  bool   `json:"enabled"`
}

// Provider is the slice of the identity provider's admin API the
// reconciliation needs. The realm is fixed at construction time.
type Provider interface {
	// Count returns the total number of users in the realm.
	Count(ctx context.Context) (int, error)

	// ListPage returns one page of users starting at offset first.
	ListPage(ctx context.Context, first, max int) ([]User, error)

	// FindByUsername returns users whose username matches exactly.
	FindByUsername(ctx context.Context, username string) ([]User, error)
}

// DecodeUsername resolves the platform's encoded username scheme:
// usernames of the form "enc.<base32>" carry the display name base32
// encoded (unpadded, lowercase). Anything else is returned as is, as is
// any encoded name that fails to decode.
func DecodeUsername(username string) string {
	rest, ok := strings.CutPrefix(username, "enc.")
	if !ok {
		return username
	}
	enc := strings.ToUpper(rest)
	if pad := len(enc) % 8; pad != 0 {
		enc += strings.Repeat("=", 8-pad)
	}
	decoded, err := base32.StdEncoding.DecodeString(enc)
	if err != nil {
		return username
	}
	return string(decoded)
}
