package session

import (
	"context"
	"fmt"

	"github.com/rss-stash/rss-stash/app/source"
)

// Authenticator performs a login against a site and returns the captured
// cookie set. Implementations are selected by the login config's type
// discriminant; each variant honors the same contract.
type Authenticator interface {
	Login(ctx context.Context, login *source.ConfigLogin) ([]Cookie, error)
}

// NewAuthenticator returns the authenticator variant for the login config.
func NewAuthenticator(login *source.ConfigLogin, userAgent string, timeoutSeconds int) (Authenticator, error) {
	switch login.Type {
	case "form":
		return NewFormAuthenticator(userAgent, timeoutSeconds), nil
	case "api":
		return NewAPIAuthenticator(userAgent, timeoutSeconds), nil
	default:
		return nil, fmt.Errorf("unknown login type %q", login.Type)
	}
}
