// Package noop admits every request. cmd/server selects it for auth.type
// "none", which is meant for a proxy reachable only from trusted clients.
package noop

import (
	"context"
	"net/http"

	"github.com/dhinSgd/fal-to-openai/pkg/auth"
)

// Authenticator votes Yes for any request, credentials or not.
type Authenticator struct{}

var _ auth.Authenticator = (*Authenticator)(nil)

// anonymous is the identity of every admitted request. Rate limits apply
// to it as a single caller.
var anonymous = auth.Identity{Subject: "anonymous", ServiceTier: "default"}

func (*Authenticator) Authenticate(context.Context, *http.Request) auth.AuthResult {
	id := anonymous
	return auth.AuthResult{Decision: auth.Yes, Identity: &id}
}
