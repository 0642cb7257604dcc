package workflow

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"fundimart.org/internal/admin"
	"fundimart.org/internal/auth"
	"fundimart.org/internal/ids"
	"fundimart.org/internal/obs"
)

// DefaultReportBaseURL prefixes result locators of the built-in generator.
const DefaultReportBaseURL = "https://reports.fundimart.local"

// ReportStatus is the generation state of a report.
type ReportStatus string

const (
	ReportPending    ReportStatus = "pending"
	ReportProcessing ReportStatus = "processing"
	ReportReady      ReportStatus = "ready"
	ReportFailed     ReportStatus = "failed"
)

// Terminal reports whether no further transition is defined.
func (s ReportStatus) Terminal() bool {
	return s == ReportReady || s == ReportFailed
}

// Templates lists the report kinds the generator understands.
var Templates = []string{"revenue", "bookings", "verifications", "disputes", "users"}

func knownTemplate(name string) bool {
	for _, t := range Templates {
		if t == name {
			return true
		}
	}
	return false
}

// Report is a generated analytics document.
type Report struct {
	ID          string            `json:"id"`
	CreatedBy   string            `json:"created_by"`
	Template    string            `json:"template"`
	Params      map[string]string `json:"params,omitempty"`
	Status      ReportStatus      `json:"status"`
	ResultURL   string            `json:"result_url,omitempty"`
	Error       string            `json:"error,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// ReportResult is the outcome attached when a report advances.
type ReportResult struct {
	URL   string
	Error string
}

// ReportUpdate is applied by the store only while the report still has the expected status.
type ReportUpdate struct {
	To     ReportStatus
	Result ReportResult
	At     time.Time
}

// Apply returns r after the update.
func (u ReportUpdate) Apply(r Report) Report {
	at := u.At
	r.Status = u.To
	r.UpdatedAt = at
	switch u.To {
	case ReportReady:
		r.ResultURL = u.Result.URL
		r.CompletedAt = &at
	case ReportFailed:
		r.Error = u.Result.Error
		r.CompletedAt = &at
	}
	return r
}

// ReportFilter narrows report listings.
type ReportFilter struct {
	Status    ReportStatus
	Template  string
	CreatedBy string
	Limit     int
}

// ReportStore persists reports.
type ReportStore interface {
	CreateReport(ctx context.Context, r Report) error
	Report(ctx context.Context, id string) (Report, error)
	ListReports(ctx context.Context, f ReportFilter) ([]Report, error)
	// AdvanceReport applies u only while the report is in status from; otherwise
	// it fails with ErrInvalidTransition.
	AdvanceReport(ctx context.Context, id string, from ReportStatus, u ReportUpdate) (Report, error)
}

// Generator produces report content and returns its locator.
type Generator interface {
	Generate(ctx context.Context, r Report) (string, error)
}

// URLGenerator is the synchronous built-in generator.
type URLGenerator struct {
	BaseURL string
}

func (g URLGenerator) Generate(_ context.Context, r Report) (string, error) {
	base := strings.TrimRight(g.BaseURL, "/")
	if base == "" {
		base = DefaultReportBaseURL
	}
	return fmt.Sprintf("%s/%s/%s.csv", base, url.PathEscape(r.Template), url.PathEscape(r.ID)), nil
}

// canAdvance lists the only legal report transitions.
func canAdvance(from, to ReportStatus) bool {
	switch from {
	case ReportPending:
		return to == ReportProcessing
	case ReportProcessing:
		return to == ReportReady || to == ReportFailed
	}
	return false
}

// CreateReport persists a report and runs generation before returning, so callers
// only observe ready or failed. A generator error returns the failed report
// together with ErrGenerationFailed.
func (s *Service) CreateReport(ctx context.Context, actor *auth.Identity, template string, params map[string]string) (Report, error) {
	if err := s.gate.Require(ctx, actor, ActionReportCreate, nil); err != nil {
		return Report{}, err
	}
	template = strings.ToLower(strings.TrimSpace(template))
	if !knownTemplate(template) {
		return Report{}, fmt.Errorf("%w: unknown report template %q", auth.ErrInvalidInput, template)
	}
	now := s.now().UTC()
	r := Report{
		ID:        ids.WithPrefix("rpt"),
		CreatedBy: actor.UserID,
		Template:  template,
		Params:    params,
		Status:    ReportPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.reports.CreateReport(ctx, r); err != nil {
		return Report{}, err
	}
	obs.ObserveTransition("report", string(ReportPending))

	id := r.ID
	r, err := s.Advance(ctx, id, ReportProcessing, ReportResult{})
	if err != nil {
		return Report{}, s.abandon(ctx, id, err)
	}

	locator, genErr := s.generator.Generate(ctx, r)
	if genErr == nil && strings.TrimSpace(locator) == "" {
		genErr = errors.New("generator returned an empty locator")
	}
	if genErr != nil {
		failed, err := s.Advance(context.WithoutCancel(ctx), id, ReportFailed, ReportResult{Error: genErr.Error()})
		if err != nil {
			return Report{}, errors.Join(fmt.Errorf("%w: %v", ErrGenerationFailed, genErr), err)
		}
		return failed, fmt.Errorf("%w: %v", ErrGenerationFailed, genErr)
	}

	ready, err := s.Advance(ctx, id, ReportReady, ReportResult{URL: locator})
	if err != nil {
		return Report{}, s.abandon(ctx, id, err)
	}
	s.bump(ctx, actor.UserID, admin.StatReportsGenerated)
	return ready, nil
}

// abandon records cause on report id as a failure so it never stays pending or
// processing. It runs detached from ctx cancellation and returns cause, joined
// with the write error when the failure could not be recorded.
func (s *Service) abandon(ctx context.Context, id string, cause error) error {
	ctx = context.WithoutCancel(ctx)
	current, err := s.reports.Report(ctx, id)
	if err != nil {
		return errors.Join(cause, err)
	}
	if current.Status == ReportPending {
		if _, err := s.Advance(ctx, id, ReportProcessing, ReportResult{}); err != nil {
			return errors.Join(cause, err)
		}
		current.Status = ReportProcessing
	}
	if current.Status != ReportProcessing {
		return cause
	}
	if _, err := s.Advance(ctx, id, ReportFailed, ReportResult{Error: cause.Error()}); err != nil {
		obs.Logger().Warn().Err(err).Str("report_id", id).Msg("report failure not recorded")
		return errors.Join(cause, err)
	}
	return cause
}

// Advance moves a report along pending→processing→ready|failed.
func (s *Service) Advance(ctx context.Context, id string, to ReportStatus, result ReportResult) (Report, error) {
	current, err := s.reports.Report(ctx, id)
	if err != nil {
		return Report{}, err
	}
	if !canAdvance(current.Status, to) {
		return Report{}, fmt.Errorf("%w: report %s cannot move from %s to %s", ErrInvalidTransition, id, current.Status, to)
	}
	if to == ReportReady && strings.TrimSpace(result.URL) == "" {
		return Report{}, fmt.Errorf("%w: ready report needs a result locator", auth.ErrInvalidInput)
	}
	if to == ReportFailed && strings.TrimSpace(result.Error) == "" {
		result.Error = "unknown error"
	}
	r, err := s.reports.AdvanceReport(ctx, id, current.Status, ReportUpdate{To: to, Result: result, At: s.now().UTC()})
	if err != nil {
		return Report{}, err
	}
	obs.ObserveTransition("report", string(to))
	return r, nil
}

func (s *Service) GetReport(ctx context.Context, actor *auth.Identity, id string) (Report, error) {
	if err := s.gate.Require(ctx, actor, ActionReportRead, nil); err != nil {
		return Report{}, err
	}
	return s.reports.Report(ctx, id)
}

func (s *Service) ListReports(ctx context.Context, actor *auth.Identity, f ReportFilter) ([]Report, error) {
	if err := s.gate.Require(ctx, actor, ActionReportRead, nil); err != nil {
		return nil, err
	}
	f.Limit = clampLimit(f.Limit)
	return s.reports.ListReports(ctx, f)
}

// InvalidReportTransition builds the error stores return when a report moved on concurrently.
func InvalidReportTransition(id string, current ReportStatus) error {
	return fmt.Errorf("%w: report %s is %s", ErrInvalidTransition, id, current)
}
