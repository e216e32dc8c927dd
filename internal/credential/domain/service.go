package domain

import (
	"context"
	"time"
)

// Service is the token lifecycle facade. Everything else in the application
// that needs an Amazon bearer token goes through GetValidAccessToken and
// never touches the store or the provider directly.
type Service interface {
	// BeginAuthorization creates a single-use state nonce and returns the
	// provider consent URL to redirect the operator to.
	BeginAuthorization(ctx context.Context, redirectURI string) (*AuthorizationRedirect, error)

	// CompleteAuthorization consumes the state nonce, exchanges the
	// authorization code for a token pair, and installs it as the active
	// credential.
	CompleteAuthorization(ctx context.Context, code, stateToken string) (*Credential, error)

	// GetValidAccessToken returns a currently usable bearer token. Outside
	// the lookahead window this is a pure decrypt with no network call;
	// inside it the credential is refreshed synchronously first.
	GetValidAccessToken(ctx context.Context) (string, error)

	// Refresh forces a refresh of the active credential now.
	Refresh(ctx context.Context) (*RefreshResult, error)

	// Revoke deactivates the active credential.
	Revoke(ctx context.Context) (*RevokeResult, error)

	// Status describes the credential for the dashboard.
	Status(ctx context.Context) (*Status, error)
}

// Refresher performs the provider token-refresh exchange for one credential.
// Concurrent requests for the same credential are collapsed into a single
// in-flight call.
type Refresher interface {
	RefreshCredential(ctx context.Context, cred *Credential) (*Credential, error)
}

type AuthorizationRedirect struct {
	URL        string `json:"url"`
	StateToken string `json:"state"`
}

type RefreshResult struct {
	Status       string    `json:"status"`
	NewExpiry    time.Time `json:"new_expiry"`
	RefreshCount int       `json:"refresh_count"`
}

type RevokeResult struct {
	Status    string    `json:"status"`
	RevokedAt time.Time `json:"revoked_at"`
}

type Status struct {
	Authenticated       bool       `json:"authenticated"`
	TokenValid          bool       `json:"token_valid"`
	ExpiresAt           *time.Time `json:"expires_at,omitempty"`
	RefreshCount        int        `json:"refresh_count"`
	RefreshFailureCount int        `json:"refresh_failure_count"`
	LastRefresh         *time.Time `json:"last_refresh,omitempty"`
	LastRefreshError    *string    `json:"last_refresh_error,omitempty"`
	Scope               []string   `json:"scope,omitempty"`
}
