package engine

import (
	"context"
	"strings"

	"internfunnel/internal/apperr"
	"internfunnel/internal/ats"
	"internfunnel/internal/domain"
	"internfunnel/internal/events"
)

type ResultsInput struct {
	InterviewID string `json:"interview_id" validate:"required"`
	CandidateID string `json:"candidate_id" validate:"required"`
}

// InterviewResults is the outcome of a results sync.
type InterviewResults struct {
	Interview    domain.Interview `json:"interview_results"`
	ATSUpdated   bool             `json:"ats_updated"`
	CandidateID  string           `json:"candidate_id"`
	Fallback     bool             `json:"fallback,omitempty"`
	ErrorHandled bool             `json:"error_handled,omitempty"`
}

// synthetic reports whether id was minted locally by Invite.
func synthetic(id string) bool {
	return strings.HasPrefix(id, "fallback-") || strings.HasPrefix(id, "existing_")
}

// SyncInterviewResults copies a recorded interview into the candidate's
// ATS profile. Locally synthesized ids and provider failures are recorded
// on the profile instead of failing the call; an unknown interview is a
// not-found error.
func (e Engine) SyncInterviewResults(ctx context.Context, in ResultsInput) (InterviewResults, error) {
	if err := e.validate(in); err != nil {
		return InterviewResults{}, err
	}
	if !e.Interview.Configured() {
		return InterviewResults{}, apperr.Config("interview provider API key not configured")
	}
	if !e.ATS.Configured() {
		return InterviewResults{}, apperr.Config("ATS API token not configured")
	}
	out := InterviewResults{CandidateID: in.CandidateID}
	log := e.log().With("interview_id", in.InterviewID, "candidate_id", in.CandidateID)

	if synthetic(in.InterviewID) {
		out.Fallback = true
		out.Interview = domain.Interview{
			ID:      in.InterviewID,
			Status:  domain.InterviewNotAvailable,
			Message: "Interview results not available - candidate may have been previously invited",
		}
		out.ATSUpdated = e.patchResults(ctx, in.CandidateID, map[string]any{
			ats.FieldInterviewID:        in.InterviewID,
			ats.FieldProviderStatus:     string(domain.InterviewNotAvailable),
			ats.FieldInterviewProcessed: e.stamp(),
			ats.FieldInterviewNotes:     "Candidate was already invited to this position or interview creation failed",
		})
		return out, nil
	}

	res, err := e.Interview.GetInterview(ctx, in.InterviewID)
	if apperr.Is(err, apperr.KindNotFound) {
		return InterviewResults{}, err
	}
	if err != nil {
		log.Warn("interview results fetch failed", "err", err)
		out.ErrorHandled = true
		out.Interview = domain.Interview{
			ID:      in.InterviewID,
			Status:  domain.InterviewFetchFailed,
			Message: "Could not fetch interview results from the interview provider",
		}
		out.ATSUpdated = e.patchResults(ctx, in.CandidateID, map[string]any{
			ats.FieldInterviewID:        in.InterviewID,
			ats.FieldProviderStatus:     string(domain.InterviewFetchFailed),
			ats.FieldInterviewProcessed: e.stamp(),
			ats.FieldInterviewNotes:     "Failed to fetch interview results: " + apperrMessage(err),
		})
		return out, nil
	}

	score := 0.0
	if res.Score != nil {
		score = *res.Score
	}
	fields := map[string]any{
		ats.FieldInterviewID:        res.ID,
		ats.FieldProviderStatus:     res.Status,
		ats.FieldVideoURL:           res.VideoURL,
		ats.FieldTranscriptURL:      res.TranscriptURL,
		ats.FieldInterviewScore:     score,
		ats.FieldInterviewFeedback:  res.Feedback,
		ats.FieldProviderCompleted:  res.CompletedAt,
		ats.FieldInterviewProcessed: e.stamp(),
	}
	if err := e.ATS.UpdateCustomFields(ctx, in.CandidateID, fields); err != nil {
		return InterviewResults{}, err
	}
	out.ATSUpdated = true
	out.Interview = domain.Interview{
		ID:            res.ID,
		CandidateID:   in.CandidateID,
		Status:        domain.InterviewStatus(res.Status),
		VideoURL:      res.VideoURL,
		TranscriptURL: res.TranscriptURL,
		Score:         res.Score,
		Feedback:      res.Feedback,
		CompletedAt:   res.CompletedAt,
	}
	if err := e.appendEvent(ctx, nil, events.InterviewResultsSynced, "candidate", in.CandidateID, "system", events.EventPayload{
		"interview_id": res.ID,
		"status":       res.Status,
	}); err != nil {
		log.Warn("event append failed", "type", events.InterviewResultsSynced, "err", err)
	}
	return out, nil
}

func (e Engine) patchResults(ctx context.Context, candidateID string, fields map[string]any) bool {
	if err := e.ATS.UpdateCustomFields(ctx, candidateID, fields); err != nil {
		e.log().Warn("ats results patch failed", "candidate_id", candidateID, "err", err)
		return false
	}
	return true
}

func apperrMessage(err error) string {
	if ae, ok := apperr.As(err); ok && ae.Err != nil {
		return ae.Err.Error()
	}
	return err.Error()
}
