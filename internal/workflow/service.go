// Package workflow drives the verification state machines of material receipts
// and generated reports.
package workflow

import (
	"context"
	"errors"
	"time"

	"fundimart.org/internal/admin"
	"fundimart.org/internal/auth"
	"fundimart.org/internal/obs"
)

const maxListLimit = 200

// StatsRecorder bumps profile counters when a workflow completes.
type StatsRecorder interface {
	IncrementStat(ctx context.Context, userID string, stat admin.Stat) error
}

// Option configures Service.
type Option func(*Service)

// WithStats records verification and report counters on the acting profile.
func WithStats(r StatsRecorder) Option {
	return func(s *Service) { s.stats = r }
}

// WithGenerator replaces the default report generator.
func WithGenerator(g Generator) Option {
	return func(s *Service) {
		if g != nil {
			s.generator = g
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithUploadLimit bounds receipt sizes; limit returning zero disables the check.
func WithUploadLimit(limit func(ctx context.Context) (int64, error)) Option {
	return func(s *Service) { s.uploadLimit = limit }
}

// Service authorizes and applies workflow transitions.
type Service struct {
	receipts    ReceiptStore
	reports     ReportStore
	gate        *auth.Gate
	stats       StatsRecorder
	generator   Generator
	uploadLimit func(ctx context.Context) (int64, error)
	now         func() time.Time
}

// NewService wires the workflow engine.
func NewService(receipts ReceiptStore, reports ReportStore, gate *auth.Gate, opts ...Option) (*Service, error) {
	if receipts == nil || reports == nil {
		return nil, errors.New("workflow: receipt and report stores are required")
	}
	if gate == nil {
		return nil, errors.New("workflow: authorization gate is required")
	}
	s := &Service{
		receipts:  receipts,
		reports:   reports,
		gate:      gate,
		generator: URLGenerator{BaseURL: DefaultReportBaseURL},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) bump(ctx context.Context, userID string, stat admin.Stat) {
	if s.stats == nil {
		return
	}
	if err := s.stats.IncrementStat(ctx, userID, stat); err != nil {
		obs.Logger().Warn().Err(err).Str("user_id", userID).Str("stat", string(stat)).Msg("stat increment failed")
	}
}

func clampLimit(n int) int {
	if n <= 0 || n > maxListLimit {
		return maxListLimit
	}
	return n
}
