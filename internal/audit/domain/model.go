// Package domain contains the append-only audit trail types.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type EventType string

const (
	EventLogin   EventType = "login"
	EventRefresh EventType = "refresh"
	EventError   EventType = "error"
	EventRevoke  EventType = "revoke"
)

type EventStatus string

const (
	StatusSuccess EventStatus = "success"
	StatusFailure EventStatus = "failure"
	StatusPending EventStatus = "pending"
)

// Event is one lifecycle transition. Rows are never mutated; they are only
// deleted by the retention purge.
type Event struct {
	ID           snowflake.ID      `gorm:"primaryKey" json:"id"`
	EventType    EventType         `gorm:"column:event_type;type:text;not null;index" json:"event_type"`
	EventStatus  EventStatus       `gorm:"column:event_status;type:text;not null;index" json:"event_status"`
	CredentialID *snowflake.ID     `gorm:"column:credential_id;index" json:"credential_id,omitempty"`
	ErrorMessage *string           `gorm:"column:error_message;type:text" json:"error_message,omitempty"`
	ErrorCode    *string           `gorm:"column:error_code;type:text" json:"error_code,omitempty"`
	Metadata     datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt    time.Time         `gorm:"column:created_at;not null;index" json:"created_at"`
}

// TableName sets the database table name.
func (Event) TableName() string { return "audit_events" }

type ListRequest struct {
	Limit     int
	Offset    int
	EventType EventType
	Status    EventStatus
}

type ListResponse struct {
	Events []Event `json:"events"`
	Total  int64   `json:"total"`
}

// Record carries everything a caller knows about a transition.
type Record struct {
	Type         EventType
	Status       EventStatus
	CredentialID *snowflake.ID
	ErrorMessage string
	ErrorCode    string
	Metadata     map[string]any
}

var (
	ErrInvalidEventType = errors.New("invalid event type")
	ErrInvalidStatus    = errors.New("invalid event status")
)

type Service interface {
	Record(ctx context.Context, rec Record)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	Purge(ctx context.Context, olderThan time.Time) (int64, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, event *Event) error
	List(ctx context.Context, db *gorm.DB, req ListRequest) ([]Event, int64, error)
	DeleteOlderThan(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error)
}
