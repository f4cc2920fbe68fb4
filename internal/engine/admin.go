package engine

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"internfunnel/internal/apperr"
	"internfunnel/internal/ats"
	"internfunnel/internal/domain"
	"internfunnel/internal/email"
	"internfunnel/internal/events"
	"internfunnel/internal/repo"
	"internfunnel/internal/sheets"
)

// SetApplicationStatus is the only strict status write: an illegal
// transition is a conflict.
func (e Engine) SetApplicationStatus(ctx context.Context, id string, status domain.ApplicationStatus, actor string) (domain.Application, error) {
	if !status.Valid() {
		return domain.Application{}, apperr.Validation("status", "Invalid status: %s", status)
	}
	return e.updateApplicationTx(ctx, id, nil, &status, actor)
}

func conflict(err error) error {
	return &apperr.Error{Kind: apperr.KindConflict, Message: err.Error(), Field: "status", Err: err}
}

// updateApplicationTx reads the application, applies edit and the status
// change, and writes both with the status event in one transaction. A
// same-state status is a no-op.
func (e Engine) updateApplicationTx(ctx context.Context, id string, edit func(*domain.Application), status *domain.ApplicationStatus, actor string) (domain.Application, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Application{}, err
	}
	defer tx.Rollback()
	a, err := e.Repo.GetApplication(ctx, tx, id)
	if err != nil {
		return domain.Application{}, notFound(err, "Application not found: %s", id)
	}
	from := a.Status
	moved := status != nil && *status != from
	if moved {
		if err := domain.CheckTransition(from, *status); err != nil {
			return domain.Application{}, conflict(err)
		}
		a.Status = *status
	}
	if edit == nil && !moved {
		return a, nil
	}
	if edit != nil {
		edit(&a)
	}
	a.UpdatedAt = e.stamp()
	if err := e.Repo.UpdateApplication(ctx, tx, a); err != nil {
		return domain.Application{}, notFound(err, "Application not found: %s", id)
	}
	if moved {
		if err := e.appendEvent(ctx, tx, events.ApplicationStatusChanged, "application", a.ID, actor, events.EventPayload{
			"from":         string(from),
			"to":           string(a.Status),
			"candidate_id": a.CandidateID,
		}); err != nil {
			return domain.Application{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Application{}, err
	}
	if moved {
		e.log().Info("application status changed", "application_id", id, "from", from, "to", a.Status, "actor", actor)
	}
	return a, nil
}

// ApplicationPatch carries the admin-editable fields; nil means unchanged.
type ApplicationPatch struct {
	FirstName     *string `json:"first_name,omitempty"`
	LastName      *string `json:"last_name,omitempty"`
	Email         *string `json:"email,omitempty" validate:"omitnil,email"`
	Phone         *string `json:"phone,omitempty"`
	Location      *string `json:"location,omitempty"`
	PositionID    *string `json:"position_id,omitempty"`
	PositionTitle *string `json:"position_title,omitempty"`
	Message       *string `json:"message,omitempty"`
	Status        *string `json:"status,omitempty"`
}

func (e Engine) GetApplication(ctx context.Context, id string) (domain.Application, error) {
	a, err := e.Repo.GetApplication(ctx, nil, id)
	return a, notFound(err, "Application not found: %s", id)
}

func (e Engine) ListApplications(ctx context.Context, f repo.ApplicationFilters) ([]domain.Application, error) {
	if f.Status != "" {
		if _, err := domain.ParseApplicationStatus(f.Status); err != nil {
			return nil, apperr.Validation("status", "%v", err)
		}
	}
	return e.Repo.ListApplications(ctx, f)
}

// UpdateApplication applies the field changes and the status change
// atomically; an illegal transition leaves the record untouched.
func (e Engine) UpdateApplication(ctx context.Context, id string, p ApplicationPatch, actor string) (domain.Application, error) {
	if err := e.validate(p); err != nil {
		return domain.Application{}, err
	}
	var status *domain.ApplicationStatus
	if p.Status != nil {
		st, err := domain.ParseApplicationStatus(*p.Status)
		if err != nil {
			return domain.Application{}, apperr.Validation("status", "%v", err)
		}
		status = &st
	}
	return e.updateApplicationTx(ctx, id, func(a *domain.Application) {
		set(&a.FirstName, p.FirstName)
		set(&a.LastName, p.LastName)
		set(&a.Email, p.Email)
		set(&a.Phone, p.Phone)
		set(&a.Location, p.Location)
		set(&a.PositionID, p.PositionID)
		set(&a.PositionTitle, p.PositionTitle)
		set(&a.Message, p.Message)
	}, status, actor)
}

func set(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func (e Engine) DeleteApplication(ctx context.Context, id string) error {
	return notFound(e.Repo.DeleteApplication(ctx, id), "Application not found: %s", id)
}

func (e Engine) ListResults(ctx context.Context, f repo.ResultFilters) ([]domain.QuestionnaireResult, error) {
	return e.Repo.ListResults(ctx, f)
}

func (e Engine) DeleteResult(ctx context.Context, id string) error {
	return notFound(e.Repo.DeleteResult(ctx, id), "Result not found: %s", id)
}

// ExportResults writes the results of one kind, or both when kind is
// empty, as an xlsx workbook.
func (e Engine) ExportResults(ctx context.Context, w io.Writer, kind domain.QuestionnaireKind) error {
	results, err := e.Repo.ListResults(ctx, repo.ResultFilters{Kind: kind, Limit: 500})
	if err != nil {
		return err
	}
	exports := map[domain.QuestionnaireKind]sheets.Export{}
	for _, k := range []domain.QuestionnaireKind{domain.KindQuiz, domain.KindSurvey} {
		q := e.Config.Questionnaire(k)
		exports[k] = sheets.Export{Sheet: sheets.SheetTitle(q.Title), Mapping: e.mapping(k)}
	}
	return sheets.ExportXLSX(w, results, exports)
}

func (e Engine) ListUsers(ctx context.Context, limit int) ([]domain.User, error) {
	return e.Repo.ListUsers(ctx, limit)
}

func (e Engine) DeleteUser(ctx context.Context, uid string) error {
	return notFound(e.Repo.DeleteUser(ctx, uid), "User not found: %s", uid)
}

func (e Engine) ListCandidates(ctx context.Context, page, pageSize int) (ats.Page, error) {
	return e.ATS.ListCandidates(ctx, page, pageSize)
}

func (e Engine) GetCandidate(ctx context.Context, id string) (ats.Candidate, error) {
	return e.ATS.GetCandidate(ctx, id)
}

// DeleteCandidate removes the ATS record. Local applications are kept.
func (e Engine) DeleteCandidate(ctx context.Context, id string, actor string) error {
	if err := e.ATS.DeleteCandidate(ctx, id); err != nil {
		return err
	}
	e.log().Info("candidate deleted", "candidate_id", id, "actor", actor)
	return nil
}

func (e Engine) SendEmail(ctx context.Context, msg email.Message) (email.Sent, error) {
	if err := e.validate(msg); err != nil {
		return email.Sent{}, err
	}
	return e.Email.Send(ctx, msg)
}

func (e Engine) ListEvents(ctx context.Context, limit int, evtType string) ([]domain.Event, error) {
	return e.Repo.LatestEvents(ctx, limit, evtType, "", "")
}

// Stats is the dashboard summary.
type Stats struct {
	TotalApplications  int                  `json:"totalApplications"`
	TotalQuizResults   int                  `json:"totalQuizResults"`
	TotalSurveyResults int                  `json:"totalSurveyResults"`
	StatusCounts       map[string]int       `json:"statusCounts"`
	RecentApplications []domain.Application `json:"recentApplications"`
}

func (e Engine) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	var err error
	if s.TotalApplications, err = e.Repo.CountApplications(ctx); err != nil {
		return Stats{}, err
	}
	if s.TotalQuizResults, err = e.Repo.CountResults(ctx, domain.KindQuiz); err != nil {
		return Stats{}, err
	}
	if s.TotalSurveyResults, err = e.Repo.CountResults(ctx, domain.KindSurvey); err != nil {
		return Stats{}, err
	}
	if s.StatusCounts, err = e.Repo.CountApplicationsByStatus(ctx); err != nil {
		return Stats{}, err
	}
	if s.RecentApplications, err = e.Repo.ListApplications(ctx, repo.ApplicationFilters{Limit: 5}); err != nil {
		return Stats{}, err
	}
	return s, nil
}

// ServiceProbe is one upstream reachability check.
type ServiceProbe struct {
	Service    string `json:"service"`
	URL        string `json:"url"`
	Configured bool   `json:"configured"`
	Reachable  bool   `json:"reachable"`
	Status     int    `json:"status,omitempty"`
	LatencyMS  int64  `json:"latency_ms"`
	Error      string `json:"error,omitempty"`
}

type prober interface {
	Probe(ctx context.Context) (int, time.Duration, error)
	Configured() bool
}

// Connectivity probes every upstream concurrently. A failed probe is
// reported in its entry, never as an error.
func (e Engine) Connectivity(ctx context.Context) []ServiceProbe {
	targets := []struct {
		name string
		url  string
		p    prober
	}{
		{"ats", e.Config.ATS.BaseURL, e.ATS},
		{"interview", e.Config.Interview.BaseURL, e.Interview},
		{"email", e.Config.Email.BaseURL, e.Email},
	}
	out := make([]ServiceProbe, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range targets {
		g.Go(func() error {
			probe := ServiceProbe{Service: t.name, URL: t.url, Configured: t.p.Configured()}
			status, elapsed, err := t.p.Probe(gctx)
			probe.LatencyMS = elapsed.Milliseconds()
			if err != nil {
				probe.Error = err.Error()
			} else {
				probe.Reachable = true
				probe.Status = status
			}
			out[i] = probe
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Healthy reports whether every probe reached its upstream.
func Healthy(probes []ServiceProbe) bool {
	for _, p := range probes {
		if !p.Reachable {
			return false
		}
	}
	return true
}

var errUnreachable = errors.New("upstream unreachable")

// ProbeError summarizes failed probes for the CLI.
func ProbeError(probes []ServiceProbe) error {
	if Healthy(probes) {
		return nil
	}
	return apperr.Upstream("connectivity", http.StatusBadGateway, errUnreachable)
}
