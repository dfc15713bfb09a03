package lead

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/foundationrisk/soilrisk/internal/metrics"
	"github.com/foundationrisk/soilrisk/internal/model"
)

// ReasonPersistFailed is returned to the submitter when the store rejects a
// valid lead.
const ReasonPersistFailed = "Failed to record lead. Please try again."

// Store persists accepted leads. InsertLead always creates a new record.
type Store interface {
	InsertLead(ctx context.Context, l *model.Lead) error
}

// Mirror copies an accepted lead to a back-office system.
type Mirror interface {
	MirrorLead(ctx context.Context, l *model.Lead) (string, error)
}

// Response is the submission result returned to the form.
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Service validates, normalizes and stores intake submissions.
type Service struct {
	store   Store
	mirror  Mirror
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithMirror copies accepted leads to m after they are stored.
func WithMirror(m Mirror) Option {
	return func(s *Service) { s.mirror = m }
}

// WithMetrics records submission outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService returns a Service writing to st.
func NewService(st Store, opts ...Option) *Service {
	s := &Service{store: st, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit handles one intake submission. Validation failures and storage
// failures are reported in the Response; nothing is persisted for a
// rejected payload. Mirror failures are logged and do not affect the result.
func (s *Service) Submit(ctx context.Context, p Payload) Response {
	if err := Validate(p); err != nil {
		s.metrics.ObserveLead(metrics.OutcomeRejected)
		var verr *ValidationError
		if errors.As(err, &verr) {
			return Response{Error: verr.Reason}
		}
		return Response{Error: ReasonMissingFields}
	}

	l := Normalize(p)
	l.ID = uuid.NewString()
	l.CreatedAt = s.now().UTC()

	if err := s.store.InsertLead(ctx, l); err != nil {
		s.metrics.ObserveLead(metrics.OutcomeFailed)
		zap.L().Error("lead: insert failed",
			zap.String("lead_id", l.ID),
			zap.Error(err),
		)
		return Response{Error: ReasonPersistFailed}
	}
	s.metrics.ObserveLead(metrics.OutcomeAccepted)

	zap.L().Info("lead: accepted",
		zap.String("lead_id", l.ID),
		zap.String("zip", l.PostalCode),
		zap.Int("symptoms", len(l.Symptoms)),
	)

	if s.mirror != nil {
		if pageID, err := s.mirror.MirrorLead(ctx, l); err != nil {
			zap.L().Warn("lead: mirror failed", zap.String("lead_id", l.ID), zap.Error(err))
		} else {
			zap.L().Debug("lead: mirrored", zap.String("lead_id", l.ID), zap.String("page_id", pageID))
		}
	}

	return Response{Success: true}
}
