// Package social resolves federated login assertions into verified profiles.
//
// Two provider paths are supported: Facebook access-token exchange against the
// Graph API, and Google ID-token verification against Google's JWKS. Both
// converge on the same Profile shape; reconciliation against the local account
// store happens in the auth service.
package social

import (
	"context"
	"errors"
	"net/http"

	"nandu/api/internal/config"
)

var (
	// ErrProviderLookup covers network failures, provider-side errors and
	// unverifiable assertions. It is never retried here: a fresh
	// user-initiated attempt is cheaper and safer than replaying a possibly
	// revoked token.
	ErrProviderLookup = errors.New("provider lookup failed")

	// ErrUnverifiedEmail rejects assertions whose email the provider has not
	// verified. Accounts are never created or updated from unverified claims.
	ErrUnverifiedEmail = errors.New("provider email not verified")

	ErrBadAssertion = errors.New("unrecognized login assertion")
)

// Profile is the verified identity a provider vouches for.
type Profile struct {
	Email string
	Name  string
}

// Assertion is the raw credential posted by the client. Exactly one provider
// path applies: AccessToken+UserID selects Facebook, IDToken selects Google.
type Assertion struct {
	AccessToken string
	UserID      string
	IDToken     string
}

type Resolver struct {
	facebook *FacebookClient
	google   *GoogleVerifier
}

func NewResolver(cfg config.SocialConfig) *Resolver {
	client := &http.Client{Timeout: cfg.ProviderTimeout}
	return &Resolver{
		facebook: NewFacebookClient(cfg.FacebookGraphURL, client),
		google:   NewGoogleVerifier(cfg.GoogleClientID, cfg.GoogleJWKSURL, client),
	}
}

// Resolve exchanges the assertion for a verified profile.
func (r *Resolver) Resolve(ctx context.Context, assertion Assertion) (Profile, error) {
	switch {
	case assertion.AccessToken != "":
		return r.facebook.Profile(ctx, assertion.UserID, assertion.AccessToken)
	case assertion.IDToken != "":
		return r.google.Verify(ctx, assertion.IDToken)
	default:
		return Profile{}, ErrBadAssertion
	}
}
