package engine

import (
	"context"
	"errors"

	"internfunnel/internal/apperr"
	"internfunnel/internal/signal"
)

// SignalStatus is the relay response shared by record and poll.
type SignalStatus struct {
	Success     bool   `json:"success"`
	Completed   bool   `json:"completed"`
	CandidateID string `json:"candidate_id"`
	InterviewID string `json:"interview_id,omitempty"`
	Timestamp   string `json:"timestamp,omitempty"`
}

func signalErr(err error) error {
	if errors.Is(err, signal.ErrCandidateRequired) {
		return apperr.MissingField("candidate_id")
	}
	return err
}

// RecordSignal marks the candidate's interview as completed for the next poll.
func (e Engine) RecordSignal(ctx context.Context, candidateID, interviewID string) (SignalStatus, error) {
	if candidateID == "" {
		return SignalStatus{}, apperr.MissingField("candidate_id")
	}
	sig, err := e.Signals.Record(ctx, candidateID, interviewID)
	if err != nil {
		e.Metrics.Signal("record", "error")
		return SignalStatus{}, signalErr(err)
	}
	e.Metrics.Signal("record", "ok")
	e.log().Info("completion signal recorded", "candidate_id", candidateID, "interview_id", interviewID)
	return SignalStatus{
		Success:     true,
		Completed:   true,
		CandidateID: candidateID,
		InterviewID: sig.InterviewID,
		Timestamp:   sig.Timestamp.UTC().Format(timeLayout),
	}, nil
}

// PollSignal consumes a completed signal. Completed is true at most once per
// recorded signal.
func (e Engine) PollSignal(ctx context.Context, candidateID string) (SignalStatus, error) {
	if candidateID == "" {
		return SignalStatus{}, apperr.MissingField("candidate_id")
	}
	sig, ok, err := e.Signals.Poll(ctx, candidateID)
	if err != nil {
		e.Metrics.Signal("poll", "error")
		return SignalStatus{}, signalErr(err)
	}
	if !ok {
		e.Metrics.Signal("poll", "pending")
		return SignalStatus{Success: true, CandidateID: candidateID}, nil
	}
	e.Metrics.Signal("poll", "consumed")
	return SignalStatus{
		Success:     true,
		Completed:   true,
		CandidateID: candidateID,
		InterviewID: sig.InterviewID,
		Timestamp:   sig.Timestamp.UTC().Format(timeLayout),
	}, nil
}
