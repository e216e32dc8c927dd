package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/adsboard/adsboard/internal/clock"
	"github.com/adsboard/adsboard/internal/credential/domain"
	pkgdb "github.com/adsboard/adsboard/pkg/db"
	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestRepo(t *testing.T, clk clock.Clock) (domain.Repository, *gorm.DB) {
	t.Helper()

	db, err := pkgdb.NewTest()
	require.NoError(t, err)

	// A second pool connection would see a different in-memory database.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&domain.Credential{}, &domain.OAuthState{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return New(Params{DB: db, Log: zap.NewNop(), GenID: node, Clock: clk}), db
}

func tokens(expiry time.Time) domain.EncryptedTokens {
	return domain.EncryptedTokens{
		AccessTokenCipher:  "access-cipher",
		RefreshTokenCipher: "refresh-cipher",
		TokenType:          "bearer",
		Scope:              "advertising::campaign_management",
		ExpiresAt:          expiry,
	}
}

func TestSaveNewCredentialReplacesActive(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	repo, _ := newTestRepo(t, clk)
	ctx := context.Background()

	first, err := repo.SaveNewCredential(ctx, tokens(clk.Now().Add(time.Hour)))
	require.NoError(t, err)

	clk.Advance(time.Minute)
	second, err := repo.SaveNewCredential(ctx, tokens(clk.Now().Add(time.Hour)))
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	count, err := repo.CountActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	active, err := repo.GetActiveCredential(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)
}

func TestGetActiveCredentialNone(t *testing.T) {
	repo, _ := newTestRepo(t, clock.NewFakeClock(time.Now()))

	_, err := repo.GetActiveCredential(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)
}

func TestGetActiveCredentialMultiActiveNewestWins(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	repo, db := newTestRepo(t, clk)
	ctx := context.Background()

	older, err := repo.SaveNewCredential(ctx, tokens(clk.Now().Add(time.Hour)))
	require.NoError(t, err)

	clk.Advance(time.Minute)
	newer, err := repo.SaveNewCredential(ctx, tokens(clk.Now().Add(time.Hour)))
	require.NoError(t, err)

	// Force the anomaly the swap normally prevents.
	require.NoError(t, db.Model(&domain.Credential{}).
		Where("id = ?", older.ID).
		Update("is_active", true).Error)

	active, err := repo.GetActiveCredential(ctx)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, active.ID)
}

func TestUpdateAfterRefresh(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	repo, _ := newTestRepo(t, clk)
	ctx := context.Background()

	cred, err := repo.SaveNewCredential(ctx, tokens(clk.Now().Add(time.Hour)))
	require.NoError(t, err)

	require.NoError(t, repo.RecordRefreshFailure(ctx, cred.ID, "transient blip"))

	clk.Advance(30 * time.Minute)
	newExpiry := clk.Now().Add(time.Hour)
	updated, err := repo.UpdateAfterRefresh(ctx, cred.ID, 0, domain.EncryptedTokens{
		AccessTokenCipher:  "new-access",
		RefreshTokenCipher: "new-refresh",
		TokenType:          "bearer",
		Scope:              cred.Scope,
		ExpiresAt:          newExpiry,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, updated.RefreshCount)
	assert.Equal(t, 0, updated.RefreshFailureCount)
	assert.Nil(t, updated.LastRefreshError)
	require.NotNil(t, updated.LastRefreshAt)
	assert.Equal(t, "new-access", updated.AccessTokenCipher)
	assert.True(t, updated.ExpiresAt.Equal(newExpiry))
	assert.True(t, updated.IsActive)
}

func TestUpdateAfterRefreshConcurrentConflict(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	repo, _ := newTestRepo(t, clk)
	ctx := context.Background()

	cred, err := repo.SaveNewCredential(ctx, tokens(clk.Now().Add(time.Hour)))
	require.NoError(t, err)

	_, err = repo.UpdateAfterRefresh(ctx, cred.ID, 0, tokens(clk.Now().Add(2*time.Hour)))
	require.NoError(t, err)

	// Second writer still holds the stale refresh count.
	_, err = repo.UpdateAfterRefresh(ctx, cred.ID, 0, tokens(clk.Now().Add(2*time.Hour)))
	assert.ErrorIs(t, err, domain.ErrConcurrentUpdate)
}

func TestUpdateAfterRefreshUnknownCredential(t *testing.T) {
	clk := clock.NewFakeClock(time.Now())
	repo, _ := newTestRepo(t, clk)

	_, err := repo.UpdateAfterRefresh(context.Background(), snowflake.ID(12345), 0, tokens(clk.Now()))
	assert.ErrorIs(t, err, domain.ErrCredentialNotFound)
}

func TestRecordRefreshFailureAccumulates(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	repo, _ := newTestRepo(t, clk)
	ctx := context.Background()

	cred, err := repo.SaveNewCredential(ctx, tokens(clk.Now().Add(time.Hour)))
	require.NoError(t, err)

	require.NoError(t, repo.RecordRefreshFailure(ctx, cred.ID, "first"))
	require.NoError(t, repo.RecordRefreshFailure(ctx, cred.ID, "second"))

	active, err := repo.GetActiveCredential(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, active.RefreshFailureCount)
	require.NotNil(t, active.LastRefreshError)
	assert.Equal(t, "second", *active.LastRefreshError)
	assert.True(t, active.IsActive)
}

func TestDeactivateIdempotent(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	repo, _ := newTestRepo(t, clk)
	ctx := context.Background()

	cred, err := repo.SaveNewCredential(ctx, tokens(clk.Now().Add(time.Hour)))
	require.NoError(t, err)

	require.NoError(t, repo.Deactivate(ctx, cred.ID))
	require.NoError(t, repo.Deactivate(ctx, cred.ID))

	_, err = repo.GetActiveCredential(ctx)
	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)
}

func TestListActiveExpiringBefore(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	repo, _ := newTestRepo(t, clk)
	ctx := context.Background()

	_, err := repo.SaveNewCredential(ctx, tokens(clk.Now().Add(2*time.Minute)))
	require.NoError(t, err)

	soon, err := repo.ListActiveExpiringBefore(ctx, clk.Now().Add(5*time.Minute))
	require.NoError(t, err)
	assert.Len(t, soon, 1)

	later, err := repo.ListActiveExpiringBefore(ctx, clk.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, later)
}

func TestConsumeStateSingleUse(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	repo, _ := newTestRepo(t, clk)
	ctx := context.Background()

	require.NoError(t, repo.CreateState(ctx, &domain.OAuthState{
		StateToken:  "nonce-1",
		RedirectURI: "https://app.example.com/callback",
		CreatedAt:   clk.Now(),
		ExpiresAt:   clk.Now().Add(domain.StateTTL),
	}))

	state, err := repo.ConsumeState(ctx, "nonce-1", clk.Now())
	require.NoError(t, err)
	assert.Equal(t, "https://app.example.com/callback", state.RedirectURI)

	_, err = repo.ConsumeState(ctx, "nonce-1", clk.Now())
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestConsumeStateExpiredOrUnknown(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	repo, _ := newTestRepo(t, clk)
	ctx := context.Background()

	require.NoError(t, repo.CreateState(ctx, &domain.OAuthState{
		StateToken:  "nonce-2",
		RedirectURI: "https://app.example.com/callback",
		CreatedAt:   clk.Now(),
		ExpiresAt:   clk.Now().Add(domain.StateTTL),
	}))

	clk.Advance(domain.StateTTL + time.Second)
	_, err := repo.ConsumeState(ctx, "nonce-2", clk.Now())
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = repo.ConsumeState(ctx, "never-created", clk.Now())
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestConsumeStateConcurrentSingleWinner(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	repo, _ := newTestRepo(t, clk)
	ctx := context.Background()

	require.NoError(t, repo.CreateState(ctx, &domain.OAuthState{
		StateToken:  "nonce-race",
		RedirectURI: "https://app.example.com/callback",
		CreatedAt:   clk.Now(),
		ExpiresAt:   clk.Now().Add(domain.StateTTL),
	}))

	const callers = 8
	var wg sync.WaitGroup
	wins := make(chan struct{}, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.ConsumeState(ctx, "nonce-race", clk.Now()); err == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for range wins {
		won++
	}
	assert.Equal(t, 1, won)
}

func TestPurgeExpiredStates(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	repo, db := newTestRepo(t, clk)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.CreateState(ctx, &domain.OAuthState{
			StateToken:  fmt.Sprintf("nonce-%d", i),
			RedirectURI: "https://app.example.com/callback",
			CreatedAt:   clk.Now(),
			ExpiresAt:   clk.Now().Add(domain.StateTTL),
		}))
	}
	_, err := repo.ConsumeState(ctx, "nonce-0", clk.Now())
	require.NoError(t, err)

	// Used rows go immediately; unexpired unused rows stay.
	deleted, err := repo.PurgeExpiredStates(ctx, clk.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	clk.Advance(domain.StateTTL + time.Second)
	deleted, err = repo.PurgeExpiredStates(ctx, clk.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	var remaining int64
	require.NoError(t, db.Model(&domain.OAuthState{}).Count(&remaining).Error)
	assert.Zero(t, remaining)
}
