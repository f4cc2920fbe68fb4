// Package events appends funnel events to the event log that feeds the
// admin timeline and the outbound subscriber dispatcher.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const (
	ApplicationCreated       = "application.created"
	ApplicationStatusChanged = "application.status_changed"
	ResumeUploaded           = "resume.uploaded"
	InterviewInvited         = "interview.invited"
	InterviewCompleted       = "interview.completed"
	InterviewResultsSynced   = "interview.results_synced"
	QuestionnaireSubmitted   = "questionnaire.submitted"
	ATSEvent                 = "ats.event"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Append writes one event. tx may be nil to write outside a transaction.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID, actor string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	var x execer = w.DB
	if tx != nil {
		x = tx
	}
	_, err = x.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,actor,payload_json) VALUES (?,?,?,?,?,?)`,
		ts, evtType, entityKind, nullable(entityID), actor, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
