package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Repository is the durable token store. It is the sole mutator of
// credential rows; the single-active invariant is enforced here.
type Repository interface {
	// SaveNewCredential deactivates whatever credential is currently active
	// and inserts the new one as active, atomically. A concurrent reader
	// never observes zero or two active rows mid-write.
	SaveNewCredential(ctx context.Context, tokens EncryptedTokens) (*Credential, error)

	// GetActiveCredential returns the single active credential, or
	// ErrNotAuthenticated when none exists. If the store ever yields more
	// than one active row the newest-created row wins; the anomaly is
	// logged at high severity and counted, never raised.
	GetActiveCredential(ctx context.Context) (*Credential, error)

	// CountActive reports how many rows are flagged active.
	CountActive(ctx context.Context) (int64, error)

	// UpdateAfterRefresh overwrites the token columns in place, bumps
	// refresh_count, stamps last_refresh_at, and clears the failure state.
	// The write is conditional on expectedRefreshCount so concurrent
	// refreshers cannot both win; the loser gets ErrConcurrentUpdate.
	UpdateAfterRefresh(ctx context.Context, id snowflake.ID, expectedRefreshCount int, tokens EncryptedTokens) (*Credential, error)

	// RecordRefreshFailure increments refresh_failure_count and stores the
	// message. is_active is left untouched: a failed refresh does not
	// invalidate the still-unexpired current token.
	RecordRefreshFailure(ctx context.Context, id snowflake.ID, message string) error

	// Deactivate clears is_active. Idempotent.
	Deactivate(ctx context.Context, id snowflake.ID) error

	// ListActiveExpiringBefore returns active credentials whose expiry
	// falls before the cutoff.
	ListActiveExpiringBefore(ctx context.Context, cutoff time.Time) ([]Credential, error)

	// CreateState persists a fresh authorization state nonce.
	CreateState(ctx context.Context, state *OAuthState) error

	// ConsumeState atomically marks the nonce used and returns it. A
	// second consumption, an unknown token, or an expired nonce all fail
	// with ErrInvalidState.
	ConsumeState(ctx context.Context, stateToken string, now time.Time) (*OAuthState, error)

	// PurgeExpiredStates deletes expired or used state rows.
	PurgeExpiredStates(ctx context.Context, now time.Time) (int64, error)
}
