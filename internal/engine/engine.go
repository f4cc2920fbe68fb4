// Package engine orchestrates the funnel: intake, webhook reconciliation,
// questionnaire fan-out and the admin operations. External systems are
// reached through their clients; local state lives in the SQLite store.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"internfunnel/internal/apperr"
	"internfunnel/internal/ats"
	"internfunnel/internal/config"
	"internfunnel/internal/domain"
	"internfunnel/internal/email"
	"internfunnel/internal/events"
	"internfunnel/internal/interview"
	"internfunnel/internal/metrics"
	"internfunnel/internal/repo"
	"internfunnel/internal/sheets"
	"internfunnel/internal/signal"
	"internfunnel/internal/upstream"
)

type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	Events    events.Writer
	Config    *config.Config
	Now       func() time.Time
	Logger    *slog.Logger
	ATS       *ats.Client
	Interview *interview.Client
	Email     *email.Client
	Sheets    sheets.Sink
	Signals   signal.Store
	Metrics   *metrics.Metrics
	Validate  *validator.Validate
}

// New wires an engine from config. The spreadsheet sink defaults to
// sheets.Discard and signals to the in-memory store; callers swap them for
// the configured backends.
func New(db *sql.DB, cfg *config.Config, m *metrics.Metrics) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	var obs upstream.Observer
	if m != nil {
		obs = m
	}
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
		Logger: slog.Default(),
		ATS: ats.New(ats.Config{
			BaseURL:      cfg.ATS.BaseURL,
			Token:        cfg.ATS.Token,
			CandidateURL: cfg.ATS.CandidateURL,
			Timeout:      seconds(cfg.ATS.TimeoutSeconds),
			Observer:     obs,
		}),
		Interview: interview.New(interview.Config{
			BaseURL:  cfg.Interview.BaseURL,
			APIKey:   cfg.Interview.APIKey,
			Timeout:  seconds(cfg.Interview.TimeoutSeconds),
			Observer: obs,
		}),
		Email: email.New(email.Config{
			BaseURL:  cfg.Email.BaseURL,
			APIKey:   cfg.Email.APIKey,
			From:     cfg.Email.From,
			ReplyTo:  cfg.Email.ReplyTo,
			Timeout:  seconds(cfg.Email.TimeoutSeconds),
			Observer: obs,
		}),
		Sheets:   sheets.Discard{},
		Signals:  signal.NewMemoryStore(time.Duration(cfg.Signals.TTLMinutes) * time.Minute),
		Metrics:  m,
		Validate: NewValidator(),
	}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

const timeLayout = time.RFC3339

func (e Engine) stamp() string {
	return e.now().UTC().Format(timeLayout)
}

func (e Engine) log() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e Engine) appendEvent(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID, actor string, payload events.EventPayload) error {
	w := e.Events
	if w.DB == nil {
		w.DB = e.DB
	}
	w.Now = e.now
	return w.Append(ctx, tx, evtType, entityKind, entityID, actor, payload)
}

// NewValidator returns a validator that reports JSON field names.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// validate maps the first struct violation onto a validation error.
func (e Engine) validate(v any) error {
	val := e.Validate
	if val == nil {
		val = NewValidator()
	}
	err := val.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			return apperr.MissingField(field)
		case "email":
			return apperr.Validation(field, "Invalid email address: %v", fe.Value())
		default:
			return apperr.Validation(field, "Invalid value for field: %s", field)
		}
	}
	return apperr.Validation("", "%v", err)
}

// notFound converts repo.ErrNotFound into the shared error contract.
func notFound(err error, format string, args ...any) error {
	if errors.Is(err, repo.ErrNotFound) {
		return apperr.NotFound(format, args...)
	}
	return err
}

// StepResult reports one best-effort step of a multi-step operation.
type StepResult struct {
	Step    string `json:"step"`
	OK      bool   `json:"ok"`
	Skipped bool   `json:"skipped,omitempty"`
	Error   string `json:"error,omitempty"`
}

func stepOK(name string) StepResult      { return StepResult{Step: name, OK: true} }
func stepSkipped(name string) StepResult { return StepResult{Step: name, Skipped: true} }

func stepFailed(name string, err error) StepResult {
	return StepResult{Step: name, Error: err.Error()}
}

// advanceStatus moves an application forward when the transition table
// allows it and leaves it unchanged otherwise. It never fails the caller.
func advanceStatus(a *domain.Application, to domain.ApplicationStatus) bool {
	if a.Status == to || !domain.CanTransition(a.Status, to) {
		return false
	}
	a.Status = to
	return true
}
