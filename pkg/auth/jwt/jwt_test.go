package jwt

import (
	"context"
	"net/http"
	"slices"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/dhinSgd/fal-to-openai/pkg/auth"
)

var testSecret = []byte("test-secret-0123456789")

func sign(t *testing.T, method jwtlib.SigningMethod, key []byte, claims jwtlib.MapClaims) string {
	t.Helper()
	s, err := jwtlib.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("signing test token: %v", err)
	}
	return s
}

func validClaims() jwtlib.MapClaims {
	return jwtlib.MapClaims{
		"sub":   "alice",
		"tier":  "premium",
		"scope": "chat models",
		"iss":   "https://issuer.test",
		"aud":   "fal-to-openai",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
}

func newTestAuthenticator(t *testing.T, override func(*Config)) *Authenticator {
	t.Helper()
	cfg := Config{Secret: testSecret, Issuer: "https://issuer.test", Audience: "fal-to-openai"}
	if override != nil {
		override(&cfg)
	}
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func authenticate(a *Authenticator, header string) auth.AuthResult {
	r, _ := http.NewRequest("POST", "/v1/chat/completions", nil)
	if header != "" {
		r.Header.Set("Authorization", header)
	}
	return a.Authenticate(context.Background(), r)
}

func TestNewRequiresSecret(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error without secret")
	}
}

func TestValidToken(t *testing.T) {
	a := newTestAuthenticator(t, nil)
	result := authenticate(a, "Bearer "+sign(t, jwtlib.SigningMethodHS256, testSecret, validClaims()))

	if result.Decision != auth.Yes {
		t.Fatalf("Decision = %d, want Yes (err: %v)", result.Decision, result.Err)
	}
	id := result.Identity
	if id.Subject != "alice" {
		t.Errorf("Subject = %q, want alice", id.Subject)
	}
	if id.ServiceTier != "premium" {
		t.Errorf("ServiceTier = %q, want premium", id.ServiceTier)
	}
	if !slices.Equal(id.Scopes, []string{"chat", "models"}) {
		t.Errorf("Scopes = %v, want [chat models]", id.Scopes)
	}
}

func TestRejectedTokens(t *testing.T) {
	a := newTestAuthenticator(t, nil)

	tests := []struct {
		name   string
		mutate func(jwtlib.MapClaims)
		key    []byte
		method jwtlib.SigningMethod
	}{
		{"expired", func(c jwtlib.MapClaims) { c["exp"] = time.Now().Add(-time.Hour).Unix() }, testSecret, jwtlib.SigningMethodHS256},
		{"no expiry", func(c jwtlib.MapClaims) { delete(c, "exp") }, testSecret, jwtlib.SigningMethodHS256},
		{"wrong issuer", func(c jwtlib.MapClaims) { c["iss"] = "https://other.test" }, testSecret, jwtlib.SigningMethodHS256},
		{"wrong audience", func(c jwtlib.MapClaims) { c["aud"] = "someone-else" }, testSecret, jwtlib.SigningMethodHS256},
		{"missing subject", func(c jwtlib.MapClaims) { delete(c, "sub") }, testSecret, jwtlib.SigningMethodHS256},
		{"wrong secret", nil, []byte("another-secret"), jwtlib.SigningMethodHS256},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := validClaims()
			if tt.mutate != nil {
				tt.mutate(claims)
			}
			result := authenticate(a, "Bearer "+sign(t, tt.method, tt.key, claims))
			if result.Decision != auth.No {
				t.Errorf("Decision = %d, want No", result.Decision)
			}
			if result.Err == nil {
				t.Error("expected an error on rejection")
			}
		})
	}
}

func TestUnsignedTokenRejected(t *testing.T) {
	a := newTestAuthenticator(t, nil)
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, validClaims()).SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("signing: %v", err)
	}
	if result := authenticate(a, "Bearer "+token); result.Decision != auth.No {
		t.Errorf("Decision = %d, want No", result.Decision)
	}
}

func TestAbstains(t *testing.T) {
	a := newTestAuthenticator(t, nil)

	tests := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"basic scheme", "Basic dXNlcjpwYXNz"},
		{"opaque api key", "Bearer sk-not-a-jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := authenticate(a, tt.header); result.Decision != auth.Abstain {
				t.Errorf("Decision = %d, want Abstain", result.Decision)
			}
		})
	}
}

func TestCustomClaims(t *testing.T) {
	a := newTestAuthenticator(t, func(c *Config) {
		c.Issuer = ""
		c.Audience = ""
		c.UserClaim = "email"
		c.TierClaim = "plan"
		c.ScopesClaim = "permissions"
	})

	claims := jwtlib.MapClaims{
		"email":       "bob@example.com",
		"plan":        "free",
		"permissions": []any{"chat", 7, "models"},
		"exp":         time.Now().Add(time.Hour).Unix(),
	}
	result := authenticate(a, "Bearer "+sign(t, jwtlib.SigningMethodHS512, testSecret, claims))
	if result.Decision != auth.Yes {
		t.Fatalf("Decision = %d, want Yes (err: %v)", result.Decision, result.Err)
	}
	if result.Identity.Subject != "bob@example.com" || result.Identity.ServiceTier != "free" {
		t.Errorf("identity = %+v", result.Identity)
	}
	if !slices.Equal(result.Identity.Scopes, []string{"chat", "models"}) {
		t.Errorf("Scopes = %v, want [chat models]", result.Identity.Scopes)
	}
}

func TestLeeway(t *testing.T) {
	a := newTestAuthenticator(t, func(c *Config) { c.Leeway = time.Minute })

	claims := validClaims()
	claims["exp"] = time.Now().Add(-30 * time.Second).Unix()
	if result := authenticate(a, "Bearer "+sign(t, jwtlib.SigningMethodHS256, testSecret, claims)); result.Decision != auth.Yes {
		t.Errorf("Decision = %d, want Yes within leeway (err: %v)", result.Decision, result.Err)
	}
}
