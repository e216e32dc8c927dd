package service

import (
	"context"
	"time"

	"github.com/adsboard/adsboard/internal/audit/domain"
	"github.com/adsboard/adsboard/internal/clock"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultListLimit = 50
	maxListLimit     = 250
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// Record appends one event. The audit trail is the durable record of what
// happened independent of whether the caller observed it, so a write failure
// is logged but never propagated into the lifecycle operation itself.
func (s *Service) Record(ctx context.Context, rec domain.Record) {
	payload := map[string]any{}
	for key, value := range rec.Metadata {
		if key == "" {
			continue
		}
		payload[key] = value
	}

	event := domain.Event{
		ID:           s.genID.Generate(),
		EventType:    rec.Type,
		EventStatus:  rec.Status,
		CredentialID: rec.CredentialID,
		Metadata:     datatypes.JSONMap(payload),
		CreatedAt:    s.clock.Now(),
	}
	if rec.ErrorMessage != "" {
		msg := rec.ErrorMessage
		event.ErrorMessage = &msg
	}
	if rec.ErrorCode != "" {
		code := rec.ErrorCode
		event.ErrorCode = &code
	}

	if err := s.repo.Insert(ctx, s.db, &event); err != nil {
		s.log.Warn("failed to write audit event",
			zap.String("event_type", string(rec.Type)),
			zap.String("event_status", string(rec.Status)),
			zap.Error(err),
		)
	}
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	if req.EventType != "" && !validEventType(req.EventType) {
		return domain.ListResponse{}, domain.ErrInvalidEventType
	}
	if req.Status != "" && !validStatus(req.Status) {
		return domain.ListResponse{}, domain.ErrInvalidStatus
	}
	if req.Limit <= 0 {
		req.Limit = defaultListLimit
	}
	if req.Limit > maxListLimit {
		req.Limit = maxListLimit
	}
	if req.Offset < 0 {
		req.Offset = 0
	}

	events, total, err := s.repo.List(ctx, s.db, req)
	if err != nil {
		return domain.ListResponse{}, err
	}
	if events == nil {
		events = []domain.Event{}
	}
	return domain.ListResponse{Events: events, Total: total}, nil
}

func (s *Service) Purge(ctx context.Context, olderThan time.Time) (int64, error) {
	deleted, err := s.repo.DeleteOlderThan(ctx, s.db, olderThan)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.log.Info("purged audit events", zap.Int64("deleted", deleted))
	}
	return deleted, nil
}

func validEventType(t domain.EventType) bool {
	switch t {
	case domain.EventLogin, domain.EventRefresh, domain.EventError, domain.EventRevoke:
		return true
	}
	return false
}

func validStatus(s domain.EventStatus) bool {
	switch s {
	case domain.StatusSuccess, domain.StatusFailure, domain.StatusPending:
		return true
	}
	return false
}
