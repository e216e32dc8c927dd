// Package domain contains the token lifecycle core types: the persisted
// credential set, the short-lived OAuth state nonce, and the service
// contracts the rest of the application consumes.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Credential is one access/refresh token pair with its lifecycle metadata.
// Token values are stored encrypted; plaintext never reaches the database.
// At most one row carries is_active = true at any observation point.
type Credential struct {
	ID                  snowflake.ID `gorm:"primaryKey" json:"id"`
	AccessTokenCipher   string       `gorm:"column:access_token_cipher;type:text;not null" json:"-"`
	RefreshTokenCipher  string       `gorm:"column:refresh_token_cipher;type:text;not null" json:"-"`
	TokenType           string       `gorm:"column:token_type;type:text;not null" json:"token_type"`
	Scope               string       `gorm:"column:scope;type:text" json:"scope"`
	ExpiresAt           time.Time    `gorm:"column:expires_at;not null;index" json:"expires_at"`
	IsActive            bool         `gorm:"column:is_active;not null;index" json:"is_active"`
	RefreshCount        int          `gorm:"column:refresh_count;not null;default:0" json:"refresh_count"`
	RefreshFailureCount int          `gorm:"column:refresh_failure_count;not null;default:0" json:"refresh_failure_count"`
	LastRefreshError    *string      `gorm:"column:last_refresh_error;type:text" json:"last_refresh_error,omitempty"`
	LastRefreshAt       *time.Time   `gorm:"column:last_refresh_at" json:"last_refresh_at,omitempty"`
	CreatedAt           time.Time    `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt           time.Time    `gorm:"column:updated_at;not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Credential) TableName() string { return "credentials" }

// Scopes returns the granted permission set (space-delimited wire format).
func (c *Credential) Scopes() []string {
	return strings.Fields(c.Scope)
}

// ExpiresWithin reports whether the access token expires before now+window.
func (c *Credential) ExpiresWithin(now time.Time, window time.Duration) bool {
	return !c.ExpiresAt.After(now.Add(window))
}

// Expired reports whether the access token is already unusable.
func (c *Credential) Expired(now time.Time) bool {
	return !c.ExpiresAt.After(now)
}

// OAuthState is the single-use CSRF nonce for the authorization-code flow.
type OAuthState struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	StateToken  string       `gorm:"column:state_token;type:text;not null;uniqueIndex"`
	RedirectURI string       `gorm:"column:redirect_uri;type:text;not null"`
	Used        bool         `gorm:"column:used;not null"`
	CreatedAt   time.Time    `gorm:"column:created_at;not null"`
	ExpiresAt   time.Time    `gorm:"column:expires_at;not null;index"`
}

// TableName sets the database table name.
func (OAuthState) TableName() string { return "oauth_states" }

// StateTTL is how long an authorization attempt stays consumable.
const StateTTL = 10 * time.Minute

// EncryptedTokens is a token payload after the codec has sealed it, ready
// for persistence.
type EncryptedTokens struct {
	AccessTokenCipher  string
	RefreshTokenCipher string
	TokenType          string
	Scope              string
	ExpiresAt          time.Time
}
