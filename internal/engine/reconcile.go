package engine

import (
	"context"
	"errors"
	"fmt"

	"internfunnel/internal/apperr"
	"internfunnel/internal/ats"
	"internfunnel/internal/domain"
	"internfunnel/internal/events"
	"internfunnel/internal/repo"
	"internfunnel/internal/webhook"
)

const (
	ProviderInterview = "interview"
	ProviderATS       = "ats"
)

// WebhookAck is the acknowledgement returned to the provider.
type WebhookAck struct {
	Success     bool         `json:"success"`
	Message     string       `json:"message"`
	Event       string       `json:"event,omitempty"`
	InterviewID string       `json:"interview_id,omitempty"`
	CandidateID string       `json:"candidate_id,omitempty"`
	Timestamp   string       `json:"timestamp"`
	Steps       []StepResult `json:"steps,omitempty"`
}

func errWebhookBody(err error) error {
	return &apperr.Error{Kind: apperr.KindInternal, Message: "Failed to process webhook", Err: err}
}

// HandleInterviewWebhook reconciles an interview provider notification. Only
// the body itself can fail the call; every downstream effect is best-effort
// and reported in the returned steps.
func (e Engine) HandleInterviewWebhook(ctx context.Context, body []byte) (WebhookAck, error) {
	p, err := webhook.Parse(body)
	if err != nil {
		e.Metrics.WebhookEvent(ProviderInterview, "unknown", "invalid")
		e.log().Error("interview webhook rejected", "err", err)
		return WebhookAck{}, errWebhookBody(err)
	}
	rawEvent := p.Event()
	n := webhook.Normalize(p, e.now())
	ack := WebhookAck{
		Success:     true,
		Event:       n.Event,
		InterviewID: n.Interview.ID,
		CandidateID: n.ExternalID,
		Timestamp:   e.stamp(),
	}
	log := e.log().With("provider", ProviderInterview, "event", rawEvent, "interview_id", n.Interview.ID)

	if !n.Completion() {
		switch rawEvent {
		case webhook.EventStatusChange:
			ack.Message = fmt.Sprintf("Status change to %q acknowledged", n.Interview.Status)
		case "":
			ack.Message = "Event without name logged successfully"
		default:
			ack.Message = fmt.Sprintf("Event %s logged successfully", rawEvent)
		}
		log.Info("webhook acknowledged", "status", n.Interview.Status)
		e.Metrics.WebhookEvent(ProviderInterview, metricEvent(rawEvent), "ignored")
		return ack, nil
	}

	candidateID, lookup := e.resolveCandidate(ctx, n)
	ack.CandidateID = candidateID
	ack.Steps = append(ack.Steps, lookup)
	ack.Steps = append(ack.Steps, e.patchInterviewCompleted(ctx, candidateID, n))
	ack.Steps = append(ack.Steps, e.sendInterviewComplete(ctx, n))
	ack.Steps = append(ack.Steps, e.signalCompletion(ctx, candidateID, n.Interview.ID))
	ack.Steps = append(ack.Steps, e.markInterviewCompleted(ctx, candidateID, n))

	for _, s := range ack.Steps {
		if s.Error != "" {
			log.Warn("webhook step failed", "step", s.Step, "candidate_id", candidateID, "err", s.Error)
		}
	}
	if rawEvent == webhook.EventStatusChange {
		ack.Message = "Interview completion processed via status-change"
	} else {
		ack.Message = "Interview completion processed via finish event"
	}
	log.Info("interview completion processed", "candidate_id", candidateID)
	e.Metrics.WebhookEvent(ProviderInterview, metricEvent(rawEvent), "processed")
	return ack, nil
}

// metricEvent keeps the label set bounded to the known event names.
func metricEvent(name string) string {
	switch name {
	case webhook.EventFinish, webhook.EventStatusChange, webhook.EventStarted, webhook.EventRecording, webhook.EventUploaded,
		webhook.EventCandidateCreated, webhook.EventCandidateUpdated, webhook.EventCandidateResumeUploaded:
		return name
	}
	return "other"
}

// resolveCandidate prefers the external id and otherwise looks the
// candidate up by email.
func (e Engine) resolveCandidate(ctx context.Context, n webhook.Notification) (string, StepResult) {
	const step = "candidate_lookup"
	if n.ExternalID != "" {
		return n.ExternalID, stepSkipped(step)
	}
	email := n.Interview.Candidate.Email
	if email == "" {
		return "", stepFailed(step, errors.New("no candidate id or email in payload"))
	}
	cand, err := e.ATS.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return cand.ID.String(), stepOK(step)
	case apperr.Is(err, apperr.KindConfig):
		return "", stepSkipped(step)
	}
	return "", stepFailed(step, err)
}

func interviewCompletedFields(n webhook.Notification, processedAt string) map[string]any {
	iv := n.Interview
	id := iv.ID
	if id == "" {
		id = "unknown"
	}
	video := iv.VideoURL
	if video == "" {
		video = iv.ShareURL
	}
	return map[string]any{
		ats.FieldInterviewID:        id,
		ats.FieldProviderStatus:     "completed",
		ats.FieldVideoURL:           video,
		ats.FieldShareURL:           iv.ShareURL,
		ats.FieldPositionID:         iv.Position.ID,
		ats.FieldPositionName:       iv.Position.Name,
		ats.FieldInterviewCompleted: iv.CompletedAt,
		ats.FieldInterviewPlatform:  "Hireflix",
		ats.FieldInterviewStatus:    "completed",
		ats.FieldApplicationStage:   "video_interview_complete",
		ats.FieldReadyForReview:     true,
		ats.FieldWebhookProcessed:   processedAt,
		ats.FieldWebhookSource:      "hireflix_webhook",
	}
}

func (e Engine) patchInterviewCompleted(ctx context.Context, candidateID string, n webhook.Notification) StepResult {
	const step = "ats_patch"
	if candidateID == "" {
		return stepSkipped(step)
	}
	err := e.ATS.UpdateCustomFields(ctx, candidateID, interviewCompletedFields(n, e.stamp()))
	switch {
	case err == nil:
		return stepOK(step)
	case apperr.Is(err, apperr.KindConfig):
		return stepSkipped(step)
	}
	return stepFailed(step, err)
}

func (e Engine) sendInterviewComplete(ctx context.Context, n webhook.Notification) StepResult {
	const step = "email"
	to := n.Interview.Candidate.Email
	if !e.Config.Email.SendInterviewComplete || !e.Email.Configured() || to == "" {
		return stepSkipped(step)
	}
	name := n.Interview.Candidate.Name
	if name == "" {
		name = "Candidate"
	}
	if _, err := e.Email.SendInterviewComplete(ctx, to, name, e.Config.Server.PublicURL); err != nil {
		return stepFailed(step, err)
	}
	return stepOK(step)
}

func (e Engine) signalCompletion(ctx context.Context, candidateID, interviewID string) StepResult {
	const step = "signal"
	if candidateID == "" {
		return stepSkipped(step)
	}
	if _, err := e.RecordSignal(ctx, candidateID, interviewID); err != nil {
		return stepFailed(step, err)
	}
	return stepOK(step)
}

// markInterviewCompleted updates the local application when one correlates
// by candidate id or email.
func (e Engine) markInterviewCompleted(ctx context.Context, candidateID string, n webhook.Notification) StepResult {
	const step = "application_update"
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return stepFailed(step, err)
	}
	defer tx.Rollback()
	a, err := e.Repo.FindApplication(ctx, tx, candidateID, n.Interview.Candidate.Email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return stepSkipped(step)
		}
		return stepFailed(step, err)
	}
	from := a.Status
	a.InterviewCompleted = true
	a.InterviewStatus = domain.InterviewCompleted
	if n.Interview.ID != "" {
		a.InterviewID = n.Interview.ID
	}
	if a.CandidateID == "" {
		a.CandidateID = candidateID
	}
	moved := advanceStatus(&a, domain.StatusInterviewCompleted)
	a.UpdatedAt = e.stamp()
	if err := e.Repo.UpdateApplication(ctx, tx, a); err != nil {
		return stepFailed(step, err)
	}
	payload := events.EventPayload{
		"application_id": a.ID,
		"interview_id":   n.Interview.ID,
		"completed_at":   n.Interview.CompletedAt,
		"video_url":      n.Interview.VideoURL,
	}
	if err := e.appendEvent(ctx, tx, events.InterviewCompleted, "candidate", a.CandidateID, "webhook", payload); err != nil {
		return stepFailed(step, err)
	}
	if moved {
		if err := e.appendEvent(ctx, tx, events.ApplicationStatusChanged, "application", a.ID, "webhook", events.EventPayload{
			"from": string(from),
			"to":   string(a.Status),
		}); err != nil {
			return stepFailed(step, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return stepFailed(step, err)
	}
	return stepOK(step)
}

// HandleATSWebhook acknowledges ATS notifications and records them in the
// event log. A resume upload advances the matching application.
func (e Engine) HandleATSWebhook(ctx context.Context, body []byte) (WebhookAck, error) {
	p, err := webhook.Parse(body)
	if err != nil {
		e.Metrics.WebhookEvent(ProviderATS, "unknown", "invalid")
		e.log().Error("ats webhook rejected", "err", err)
		return WebhookAck{}, errWebhookBody(err)
	}
	event := p.String("event_type")
	if event == "" {
		event = p.Event()
	}
	candidateID := p.String("candidate_id")
	if candidateID == "" {
		candidateID = p.String("data.candidate_id")
	}
	ack := WebhookAck{Success: true, Event: event, CandidateID: candidateID, Timestamp: e.stamp()}
	log := e.log().With("provider", ProviderATS, "event", event, "candidate_id", candidateID)

	if err := e.appendEvent(ctx, nil, events.ATSEvent, "candidate", candidateID, "webhook", events.EventPayload{
		"event_type": event,
		"payload":    p.Raw(),
	}); err != nil {
		log.Warn("event append failed", "err", err)
	}
	if event == webhook.EventCandidateResumeUploaded && candidateID != "" {
		if a, err := e.Repo.FindApplication(ctx, nil, candidateID, ""); err == nil && advanceStatus(&a, domain.StatusResumeUploaded) {
			a.UpdatedAt = e.stamp()
			if err := e.Repo.UpdateApplication(ctx, nil, a); err != nil {
				log.Warn("application resume update failed", "application_id", a.ID, "err", err)
			}
		}
	}
	ack.Message = fmt.Sprintf("Event %s logged successfully", orUnknown(event))
	log.Info("ats webhook acknowledged")
	e.Metrics.WebhookEvent(ProviderATS, metricEvent(event), "processed")
	return ack, nil
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
