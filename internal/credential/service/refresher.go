package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	auditdomain "github.com/adsboard/adsboard/internal/audit/domain"
	"github.com/adsboard/adsboard/internal/clock"
	"github.com/adsboard/adsboard/internal/config"
	"github.com/adsboard/adsboard/internal/credential/domain"
	"github.com/adsboard/adsboard/internal/crypto"
	obsmetrics "github.com/adsboard/adsboard/internal/observability/metrics"
	"github.com/cenkalti/backoff/v5"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type RefresherParams struct {
	fx.In

	Cfg      config.Config
	Repo     domain.Repository
	Codec    *crypto.Codec
	Provider *ProviderClient
	Audit    auditdomain.Service
	Clock    clock.Clock
	Log      *zap.Logger
}

type refresher struct {
	repo     domain.Repository
	codec    *crypto.Codec
	provider *ProviderClient
	audit    auditdomain.Service
	clock    clock.Clock
	log      *zap.Logger

	maxAttempts   int
	baseDelay     time.Duration
	maxDelay      time.Duration
	randomization float64

	// sleep is swapped out in tests so retry pacing can be observed
	// without waiting.
	sleep func(ctx context.Context, d time.Duration) error

	group singleflight.Group
}

func NewRefresher(p RefresherParams) domain.Refresher {
	maxAttempts := p.Cfg.Refresh.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &refresher{
		repo:          p.Repo,
		codec:         p.Codec,
		provider:      p.Provider,
		audit:         p.Audit,
		clock:         p.Clock,
		log:           p.Log.Named("credential.refresher"),
		maxAttempts:   maxAttempts,
		baseDelay:     p.Cfg.Refresh.BaseDelay,
		maxDelay:      p.Cfg.Refresh.MaxDelay,
		randomization: backoff.DefaultRandomizationFactor,
		sleep:         sleepContext,
	}
}

// RefreshCredential refreshes one credential against the provider.
// Concurrent calls for the same credential ID share one provider exchange;
// every waiter gets the same outcome.
func (r *refresher) RefreshCredential(ctx context.Context, cred *domain.Credential) (*domain.Credential, error) {
	v, err, _ := r.group.Do(cred.ID.String(), func() (any, error) {
		// The flight outlives any single caller: a cancelled waiter must
		// not abort the exchange for the others.
		return r.refresh(context.WithoutCancel(ctx), cred)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Credential), nil
}

func (r *refresher) refresh(ctx context.Context, cred *domain.Credential) (*domain.Credential, error) {
	refreshToken, err := r.codec.Decrypt(cred.RefreshTokenCipher)
	if err != nil {
		r.log.Error("refresh token cipher cannot be decrypted",
			zap.Int64("credential_id", int64(cred.ID)),
			zap.Error(err),
		)
		r.recordFailure(ctx, cred, "decrypt_failed", err.Error())
		return nil, err
	}

	bo := r.newBackOff()
	var lastErr *providerError

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		token, err := r.provider.RefreshToken(ctx, refreshToken)
		if err == nil {
			obsmetrics.Token().RefreshAttempts.WithLabelValues("ok").Inc()
			return r.persist(ctx, cred, token)
		}

		var pErr *providerError
		if !errors.As(err, &pErr) {
			pErr = &providerError{message: err.Error(), transient: true}
		}
		lastErr = pErr
		obsmetrics.Token().RefreshAttempts.WithLabelValues(strconv.Itoa(pErr.status)).Inc()

		if pErr.reauthorizationRequired() {
			r.log.Warn("provider invalidated the refresh token",
				zap.Int64("credential_id", int64(cred.ID)),
				zap.String("error_code", pErr.code),
			)
			obsmetrics.Token().RefreshOutcomes.WithLabelValues(obsmetrics.ResultReauthRequired).Inc()
			r.recordFailure(ctx, cred, pErr.code, pErr.Error())
			return nil, fmt.Errorf("%w: %s", domain.ErrReauthorizationRequired, pErr.code)
		}
		if !pErr.transient {
			// An unexpected 4xx the grant-error table does not cover.
			// Retrying the same request cannot change the answer.
			r.log.Warn("provider rejected refresh request",
				zap.Int64("credential_id", int64(cred.ID)),
				zap.Int("status", pErr.status),
				zap.String("error_code", pErr.code),
			)
			obsmetrics.Token().RefreshOutcomes.WithLabelValues(obsmetrics.ResultRetryExhausted).Inc()
			r.recordFailure(ctx, cred, pErr.code, pErr.Error())
			return nil, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, pErr)
		}

		if attempt == r.maxAttempts {
			break
		}

		delay := bo.NextBackOff()
		if pErr.retryAfter > 0 {
			// The provider's own pacing hint wins over our schedule.
			delay = pErr.retryAfter
		}
		r.log.Warn("transient refresh failure; backing off",
			zap.Int64("credential_id", int64(cred.ID)),
			zap.Int("attempt", attempt),
			zap.Int("status", pErr.status),
			zap.Duration("delay", delay),
		)
		obsmetrics.Token().RefreshRetries.Inc()
		if err := r.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	r.log.Error("refresh retries exhausted",
		zap.Int64("credential_id", int64(cred.ID)),
		zap.Int("attempts", r.maxAttempts),
		zap.Error(lastErr),
	)
	obsmetrics.Token().RefreshOutcomes.WithLabelValues(obsmetrics.ResultRetryExhausted).Inc()
	r.recordFailure(ctx, cred, "retry_exhausted", lastErr.Error())
	return nil, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, lastErr)
}

func (r *refresher) persist(ctx context.Context, cred *domain.Credential, token *tokenResponse) (*domain.Credential, error) {
	accessCipher, err := r.codec.Encrypt(token.AccessToken)
	if err != nil {
		return nil, err
	}

	// Amazon rotates the refresh token on every exchange; tolerate a
	// provider that omits it by keeping the previous one.
	refreshCipher := cred.RefreshTokenCipher
	if token.RefreshToken != "" {
		if refreshCipher, err = r.codec.Encrypt(token.RefreshToken); err != nil {
			return nil, err
		}
	}

	expiresIn := token.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600
	}
	tokenType := token.TokenType
	if tokenType == "" {
		tokenType = cred.TokenType
	}
	scope := token.Scope
	if scope == "" {
		scope = cred.Scope
	}

	updated, err := r.repo.UpdateAfterRefresh(ctx, cred.ID, cred.RefreshCount, domain.EncryptedTokens{
		AccessTokenCipher:  accessCipher,
		RefreshTokenCipher: refreshCipher,
		TokenType:          tokenType,
		Scope:              scope,
		ExpiresAt:          r.clock.Now().Add(time.Duration(expiresIn) * time.Second),
	})
	if errors.Is(err, domain.ErrConcurrentUpdate) {
		// Another writer refreshed first. Its tokens are just as valid.
		r.log.Info("lost refresh race; using the winner's tokens",
			zap.Int64("credential_id", int64(cred.ID)),
		)
		return r.repo.GetActiveCredential(ctx)
	}
	if err != nil {
		return nil, err
	}

	obsmetrics.Token().RefreshOutcomes.WithLabelValues(obsmetrics.ResultSuccess).Inc()
	r.audit.Record(ctx, auditdomain.Record{
		Type:         auditdomain.EventRefresh,
		Status:       auditdomain.StatusSuccess,
		CredentialID: &updated.ID,
		Metadata: map[string]any{
			"refresh_count": updated.RefreshCount,
			"expires_at":    updated.ExpiresAt,
		},
	})
	r.log.Info("credential refreshed",
		zap.Int64("credential_id", int64(updated.ID)),
		zap.Int("refresh_count", updated.RefreshCount),
		zap.Time("expires_at", updated.ExpiresAt),
	)
	return updated, nil
}

func (r *refresher) recordFailure(ctx context.Context, cred *domain.Credential, code, message string) {
	if err := r.repo.RecordRefreshFailure(ctx, cred.ID, message); err != nil {
		r.log.Warn("record refresh failure", zap.Error(err))
	}
	r.audit.Record(ctx, auditdomain.Record{
		Type:         auditdomain.EventRefresh,
		Status:       auditdomain.StatusFailure,
		CredentialID: &cred.ID,
		ErrorCode:    code,
		ErrorMessage: message,
	})
}

func (r *refresher) newBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.baseDelay
	bo.MaxInterval = r.maxDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = r.randomization
	return bo
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
