package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	auditdomain "github.com/adsboard/adsboard/internal/audit/domain"
	"github.com/adsboard/adsboard/internal/clock"
	"github.com/adsboard/adsboard/internal/config"
	"github.com/adsboard/adsboard/internal/credential/domain"
	"github.com/adsboard/adsboard/internal/crypto"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Cfg       config.Config
	Repo      domain.Repository
	Codec     *crypto.Codec
	Provider  *ProviderClient
	Refresher domain.Refresher
	Audit     auditdomain.Service
	Clock     clock.Clock
	Log       *zap.Logger
}

type service struct {
	cfg       config.Config
	repo      domain.Repository
	codec     *crypto.Codec
	provider  *ProviderClient
	refresher domain.Refresher
	audit     auditdomain.Service
	clock     clock.Clock
	log       *zap.Logger
	lookahead time.Duration
}

func New(p Params) domain.Service {
	return &service{
		cfg:       p.Cfg,
		repo:      p.Repo,
		codec:     p.Codec,
		provider:  p.Provider,
		refresher: p.Refresher,
		audit:     p.Audit,
		clock:     p.Clock,
		log:       p.Log.Named("credential.service"),
		lookahead: p.Cfg.Refresh.LookaheadWindow,
	}
}

func (s *service) BeginAuthorization(ctx context.Context, redirectURI string) (*domain.AuthorizationRedirect, error) {
	if redirectURI == "" {
		redirectURI = s.cfg.Amazon.RedirectURI
	}
	if redirectURI == "" {
		return nil, fmt.Errorf("%w: redirect_uri is required", domain.ErrInvalidRequest)
	}

	state, err := randomToken(32)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if err := s.repo.CreateState(ctx, &domain.OAuthState{
		StateToken:  state,
		RedirectURI: redirectURI,
		CreatedAt:   now,
		ExpiresAt:   now.Add(domain.StateTTL),
	}); err != nil {
		return nil, err
	}

	consentURL, err := s.provider.AuthorizeURL(redirectURI, state)
	if err != nil {
		return nil, err
	}
	return &domain.AuthorizationRedirect{URL: consentURL, StateToken: state}, nil
}

func (s *service) CompleteAuthorization(ctx context.Context, code, stateToken string) (*domain.Credential, error) {
	if code == "" || stateToken == "" {
		return nil, fmt.Errorf("%w: code and state are required", domain.ErrInvalidRequest)
	}

	state, err := s.repo.ConsumeState(ctx, stateToken, s.clock.Now())
	if err != nil {
		if errors.Is(err, domain.ErrInvalidState) {
			s.log.Warn("authorization callback with bad state")
			s.audit.Record(ctx, auditdomain.Record{
				Type:         auditdomain.EventLogin,
				Status:       auditdomain.StatusFailure,
				ErrorCode:    "invalid_state",
				ErrorMessage: "unknown, expired, or already-used state token",
			})
		}
		return nil, err
	}

	token, err := s.provider.ExchangeCode(ctx, code, state.RedirectURI)
	if err != nil {
		mapped := s.mapExchangeError(err)
		s.log.Warn("authorization code exchange failed", zap.Error(err))
		s.audit.Record(ctx, auditdomain.Record{
			Type:         auditdomain.EventLogin,
			Status:       auditdomain.StatusFailure,
			ErrorCode:    "code_exchange_failed",
			ErrorMessage: err.Error(),
		})
		return nil, mapped
	}

	cred, err := s.installCredential(ctx, token)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, auditdomain.Record{
		Type:         auditdomain.EventLogin,
		Status:       auditdomain.StatusSuccess,
		CredentialID: &cred.ID,
		Metadata: map[string]any{
			"scope":      cred.Scope,
			"expires_at": cred.ExpiresAt,
		},
	})
	s.log.Info("credential installed",
		zap.Int64("credential_id", int64(cred.ID)),
		zap.Time("expires_at", cred.ExpiresAt),
	)
	return cred, nil
}

func (s *service) GetValidAccessToken(ctx context.Context) (string, error) {
	cred, err := s.repo.GetActiveCredential(ctx)
	if err != nil {
		return "", err
	}

	now := s.clock.Now()
	if !cred.ExpiresWithin(now, s.lookahead) {
		return s.codec.Decrypt(cred.AccessTokenCipher)
	}

	refreshed, err := s.refresher.RefreshCredential(ctx, cred)
	if err != nil {
		// A still-valid token beats failing the caller while the provider
		// has a bad moment. Once the token is actually expired there is
		// nothing left to serve.
		if errors.Is(err, domain.ErrProviderUnavailable) && !cred.Expired(now) {
			s.log.Warn("refresh failed; serving current unexpired token",
				zap.Int64("credential_id", int64(cred.ID)),
				zap.Time("expires_at", cred.ExpiresAt),
			)
			return s.codec.Decrypt(cred.AccessTokenCipher)
		}
		return "", err
	}
	return s.codec.Decrypt(refreshed.AccessTokenCipher)
}

func (s *service) Refresh(ctx context.Context) (*domain.RefreshResult, error) {
	cred, err := s.repo.GetActiveCredential(ctx)
	if err != nil {
		return nil, err
	}
	refreshed, err := s.refresher.RefreshCredential(ctx, cred)
	if err != nil {
		return nil, err
	}
	return &domain.RefreshResult{
		Status:       "refreshed",
		NewExpiry:    refreshed.ExpiresAt,
		RefreshCount: refreshed.RefreshCount,
	}, nil
}

func (s *service) Revoke(ctx context.Context) (*domain.RevokeResult, error) {
	cred, err := s.repo.GetActiveCredential(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Deactivate(ctx, cred.ID); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	s.audit.Record(ctx, auditdomain.Record{
		Type:         auditdomain.EventRevoke,
		Status:       auditdomain.StatusSuccess,
		CredentialID: &cred.ID,
	})
	s.log.Info("credential revoked", zap.Int64("credential_id", int64(cred.ID)))
	return &domain.RevokeResult{Status: "revoked", RevokedAt: now}, nil
}

func (s *service) Status(ctx context.Context) (*domain.Status, error) {
	cred, err := s.repo.GetActiveCredential(ctx)
	if errors.Is(err, domain.ErrNotAuthenticated) {
		return &domain.Status{Authenticated: false}, nil
	}
	if err != nil {
		return nil, err
	}

	expiresAt := cred.ExpiresAt
	return &domain.Status{
		Authenticated:       true,
		TokenValid:          !cred.Expired(s.clock.Now()),
		ExpiresAt:           &expiresAt,
		RefreshCount:        cred.RefreshCount,
		RefreshFailureCount: cred.RefreshFailureCount,
		LastRefresh:         cred.LastRefreshAt,
		LastRefreshError:    cred.LastRefreshError,
		Scope:               cred.Scopes(),
	}, nil
}

func (s *service) installCredential(ctx context.Context, token *tokenResponse) (*domain.Credential, error) {
	accessCipher, err := s.codec.Encrypt(token.AccessToken)
	if err != nil {
		return nil, err
	}
	refreshCipher, err := s.codec.Encrypt(token.RefreshToken)
	if err != nil {
		return nil, err
	}

	expiresIn := token.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600
	}
	tokenType := token.TokenType
	if tokenType == "" {
		tokenType = "bearer"
	}
	scope := token.Scope
	if scope == "" {
		scope = strings.Join(s.cfg.Amazon.Scopes, " ")
	}

	return s.repo.SaveNewCredential(ctx, domain.EncryptedTokens{
		AccessTokenCipher:  accessCipher,
		RefreshTokenCipher: refreshCipher,
		TokenType:          tokenType,
		Scope:              scope,
		ExpiresAt:          s.clock.Now().Add(time.Duration(expiresIn) * time.Second),
	})
}

func (s *service) mapExchangeError(err error) error {
	var pErr *providerError
	if errors.As(err, &pErr) {
		if pErr.transient {
			return fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, pErr)
		}
		return fmt.Errorf("%w: %v", domain.ErrInvalidRequest, pErr)
	}
	return err
}

func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("random state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
