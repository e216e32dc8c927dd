package repository

import (
	"context"
	"errors"
	"time"

	"github.com/adsboard/adsboard/internal/clock"
	"github.com/adsboard/adsboard/internal/credential/domain"
	obsmetrics "github.com/adsboard/adsboard/internal/observability/metrics"
	"github.com/adsboard/adsboard/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type repo struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func New(p Params) domain.Repository {
	return &repo{
		db:    p.DB,
		log:   p.Log.Named("credential.store"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (r *repo) SaveNewCredential(ctx context.Context, tokens domain.EncryptedTokens) (*domain.Credential, error) {
	now := r.clock.Now()
	cred := &domain.Credential{
		ID:                 r.genID.Generate(),
		AccessTokenCipher:  tokens.AccessTokenCipher,
		RefreshTokenCipher: tokens.RefreshTokenCipher,
		TokenType:          tokens.TokenType,
		Scope:              tokens.Scope,
		ExpiresAt:          tokens.ExpiresAt.UTC(),
		IsActive:           true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.Credential{}).
			Where("is_active = ?", true).
			Updates(map[string]any{"is_active": false, "updated_at": now}).Error; err != nil {
			return err
		}
		return tx.Create(cred).Error
	})
	if err != nil {
		return nil, err
	}

	obsmetrics.Token().ActiveCredential.Set(1)
	return cred, nil
}

func (r *repo) GetActiveCredential(ctx context.Context) (*domain.Credential, error) {
	var creds []domain.Credential
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("created_at desc, id desc").
		Find(&creds).Error
	if err != nil {
		return nil, err
	}

	switch len(creds) {
	case 0:
		return nil, domain.ErrNotAuthenticated
	case 1:
		return &creds[0], nil
	default:
		// Should be unreachable given the transactional swap, but a
		// historical race must not take the token path down. Newest row
		// wins; stale rows are left for a corrective deactivate.
		obsmetrics.Token().MultiActiveSeen.Inc()
		r.log.Error("multiple active credentials found; using most recent",
			zap.Int("count", len(creds)),
			zap.Int64("chosen_id", int64(creds[0].ID)),
		)
		return &creds[0], nil
	}
}

func (r *repo) CountActive(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Credential{}).
		Where("is_active = ?", true).
		Count(&count).Error
	return count, err
}

func (r *repo) UpdateAfterRefresh(ctx context.Context, id snowflake.ID, expectedRefreshCount int, tokens domain.EncryptedTokens) (*domain.Credential, error) {
	now := r.clock.Now()
	tx := r.db.WithContext(ctx).Model(&domain.Credential{}).
		Where("id = ? AND refresh_count = ?", id, expectedRefreshCount).
		Updates(map[string]any{
			"access_token_cipher":   tokens.AccessTokenCipher,
			"refresh_token_cipher":  tokens.RefreshTokenCipher,
			"token_type":            tokens.TokenType,
			"scope":                 tokens.Scope,
			"expires_at":            tokens.ExpiresAt.UTC(),
			"refresh_count":         gorm.Expr("refresh_count + 1"),
			"refresh_failure_count": 0,
			"last_refresh_error":    nil,
			"last_refresh_at":       now,
			"updated_at":            now,
		})
	if tx.Error != nil {
		return nil, tx.Error
	}
	if tx.RowsAffected == 0 {
		if _, err := r.findByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, domain.ErrConcurrentUpdate
	}
	return r.findByID(ctx, id)
}

func (r *repo) RecordRefreshFailure(ctx context.Context, id snowflake.ID, message string) error {
	tx := r.db.WithContext(ctx).Model(&domain.Credential{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"refresh_failure_count": gorm.Expr("refresh_failure_count + 1"),
			"last_refresh_error":    message,
			"updated_at":            r.clock.Now(),
		})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return domain.ErrCredentialNotFound
	}
	return nil
}

func (r *repo) Deactivate(ctx context.Context, id snowflake.ID) error {
	err := r.db.WithContext(ctx).Model(&domain.Credential{}).
		Where("id = ?", id).
		Updates(map[string]any{"is_active": false, "updated_at": r.clock.Now()}).Error
	if err != nil {
		return err
	}

	active, err := r.CountActive(ctx)
	if err == nil && active == 0 {
		obsmetrics.Token().ActiveCredential.Set(0)
	}
	return nil
}

func (r *repo) ListActiveExpiringBefore(ctx context.Context, cutoff time.Time) ([]domain.Credential, error) {
	var creds []domain.Credential
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND expires_at < ?", true, cutoff.UTC()).
		Order("expires_at asc").
		Find(&creds).Error
	return creds, err
}

func (r *repo) CreateState(ctx context.Context, state *domain.OAuthState) error {
	if state.ID == 0 {
		state.ID = r.genID.Generate()
	}
	if err := r.db.WithContext(ctx).Create(state).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.ErrInvalidState
		}
		return err
	}
	return nil
}

func (r *repo) ConsumeState(ctx context.Context, stateToken string, now time.Time) (*domain.OAuthState, error) {
	// Single conditional UPDATE so two concurrent callbacks with the same
	// nonce cannot both win.
	tx := r.db.WithContext(ctx).Model(&domain.OAuthState{}).
		Where("state_token = ? AND used = ? AND expires_at > ?", stateToken, false, now.UTC()).
		Update("used", true)
	if tx.Error != nil {
		return nil, tx.Error
	}
	if tx.RowsAffected == 0 {
		return nil, domain.ErrInvalidState
	}

	var state domain.OAuthState
	if err := r.db.WithContext(ctx).Where("state_token = ?", stateToken).First(&state).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrInvalidState
		}
		return nil, err
	}
	return &state, nil
}

func (r *repo) PurgeExpiredStates(ctx context.Context, now time.Time) (int64, error) {
	tx := r.db.WithContext(ctx).
		Where("expires_at <= ? OR used = ?", now.UTC(), true).
		Delete(&domain.OAuthState{})
	return tx.RowsAffected, tx.Error
}

func (r *repo) findByID(ctx context.Context, id snowflake.ID) (*domain.Credential, error) {
	var cred domain.Credential
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&cred).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrCredentialNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cred, nil
}
