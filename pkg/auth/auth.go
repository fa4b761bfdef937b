package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// AuthDecision is an authenticator's vote on a request.
type AuthDecision int

const (
	// Yes accepts the credentials. Evaluation stops and the identity is used.
	Yes AuthDecision = iota

	// No rejects credentials the authenticator recognised. Evaluation stops.
	No

	// Abstain leaves the request to the next authenticator, typically
	// because the credentials are of a type it does not handle.
	Abstain
)

// AuthResult is one authenticator's verdict. Identity is set for Yes and
// Err for No.
type AuthResult struct {
	Decision AuthDecision
	Identity *Identity
	Err      error
}

// Identity describes the caller of an accepted request.
type Identity struct {
	// Subject names the caller. It must not be empty.
	Subject string

	// ServiceTier selects the caller's rate limit.
	ServiceTier string

	// Scopes are the scopes granted by the credential, if it carries any.
	Scopes []string

	// Metadata holds authenticator specific details, such as the name of
	// the key that matched.
	Metadata map[string]string
}

// Tier returns the service tier, or "default" when none is set.
func (id *Identity) Tier() string {
	if id == nil || id.ServiceTier == "" {
		return "default"
	}
	return id.ServiceTier
}

// Authenticator votes on the credentials of a request.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) AuthResult
}

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrTooManyRequests = errors.New("rate limit exceeded")
)

// AuthChain asks its authenticators in order until one votes Yes or No.
type AuthChain struct {
	Authenticators []Authenticator

	// DefaultDecision applies when every authenticator abstains. Yes admits
	// the request as "anonymous"; anything else rejects it.
	DefaultDecision AuthDecision
}

// Authenticate returns the first non-abstaining verdict, or the default.
func (c *AuthChain) Authenticate(ctx context.Context, r *http.Request) AuthResult {
	for _, a := range c.Authenticators {
		if res := a.Authenticate(ctx, r); res.Decision != Abstain {
			return res
		}
	}

	if c.DefaultDecision == Yes {
		return AuthResult{Decision: Yes, Identity: &Identity{Subject: "anonymous", ServiceTier: "default"}}
	}
	return AuthResult{Decision: No, Err: ErrUnauthenticated}
}

// BearerToken extracts the token of an "Authorization: Bearer <token>"
// header. The scheme is matched case-insensitively. ok is false when the
// header is absent or uses another scheme; the token may be empty.
func BearerToken(r *http.Request) (token string, ok bool) {
	scheme, rest, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	return strings.TrimSpace(rest), true
}
