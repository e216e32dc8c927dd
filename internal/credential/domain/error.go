package domain

import "errors"

var (
	// ErrNotAuthenticated means no active credential exists; the operator
	// has to connect the Amazon account.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrReauthorizationRequired means the provider rejected the refresh
	// token itself. Non-retryable: only a new authorization-code flow fixes
	// it. The current access token stays usable until its natural expiry.
	ErrReauthorizationRequired = errors.New("reauthorization required")

	// ErrProviderUnavailable is a transient provider failure that survived
	// the bounded retry policy.
	ErrProviderUnavailable = errors.New("token provider unavailable")

	// ErrInvalidState covers an unknown, expired, or already-consumed OAuth
	// state nonce during the callback.
	ErrInvalidState = errors.New("invalid oauth state")

	// ErrConcurrentUpdate means the optimistic refresh-count check failed:
	// another writer refreshed the credential first.
	ErrConcurrentUpdate = errors.New("credential concurrently updated")

	// ErrCredentialNotFound means the referenced credential row is gone.
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrInvalidRequest covers malformed caller input (missing code,
	// missing redirect URI).
	ErrInvalidRequest = errors.New("invalid request")
)
