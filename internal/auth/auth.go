// Package auth defines the upstream authentication provider contract
// (spec.md §1, §6: "obtaining access/client tokens and session
// material"), an explicit external collaborator the core never implements
// itself. It ships one configuration-driven stub implementation usable
// for local development and tests, grounded on the teacher's
// internal/provider.Provider's small-interface-plus-health-check shape.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/wiretap-proxy/wiretap/internal/config"
)

// ErrMissingCredentials is returned when the configuration carries neither
// a username nor a pre-obtained access token.
var ErrMissingCredentials = errors.New("auth: no username/password or access_token/client_token configured")

// Session carries the material spec.md §6 lists under upstream
// authentication options, ready for the Proxy Connection Core to present
// during CONNECTING_UPSTREAM (spec.md §4.E).
type Session struct {
	Username    string
	AccessToken string
	ClientToken string
	// Raw holds provider-specific session material (spec.md §6's
	// `session` option) that a real provider would otherwise need a
	// dedicated field for; kept opaque here since no concrete upstream
	// protocol is specified.
	Raw string
}

// Provider is the upstream authentication provider contract. Authenticate
// is called once per CONNECTING_UPSTREAM transition (spec.md §4.E);
// implementations may cache internally across calls if the underlying
// protocol supports token refresh.
type Provider interface {
	Authenticate(ctx context.Context, cfg *config.Config) (Session, error)
}

// HealthChecker is an optional interface a Provider may implement so the
// admin surface (SPEC_FULL.md §4.G) can report whether cached credentials
// are still usable without performing a full authentication round-trip.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// StubProvider is a configuration-driven passthrough implementation of
// Provider: it never calls out to a real identity service. If the config
// already carries an access_token, it is returned verbatim together with
// any client_token (the "offline" / pre-authenticated case); otherwise, if
// a username is set, a session is derived directly from username/password
// (the password may be empty), which is sufficient to
// drive CONNECTING_UPSTREAM in tests and for upstream servers that accept
// unauthenticated or password-only sessions.
type StubProvider struct{}

// NewStubProvider returns the default Provider used when no other
// authentication backend is configured.
func NewStubProvider() *StubProvider {
	return &StubProvider{}
}

// Authenticate implements Provider.
func (StubProvider) Authenticate(_ context.Context, cfg *config.Config) (Session, error) {
	if cfg.AccessToken != "" {
		return Session{
			Username:    cfg.Username,
			AccessToken: cfg.AccessToken,
			ClientToken: cfg.ClientToken,
			Raw:         cfg.Session,
		}, nil
	}
	if cfg.Username != "" {
		return Session{Username: cfg.Username, Raw: cfg.Password}, nil
	}
	return Session{}, fmt.Errorf("%w", ErrMissingCredentials)
}

// HealthCheck implements HealthChecker for StubProvider: a stub session
// never expires, so this always succeeds.
func (StubProvider) HealthCheck(_ context.Context) error {
	return nil
}
