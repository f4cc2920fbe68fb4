package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"internfunnel/internal/apperr"
	"internfunnel/internal/domain"
	"internfunnel/internal/events"
	"internfunnel/internal/repo"
	"internfunnel/internal/scoring"
	"internfunnel/internal/sheets"
)

const (
	SinkDocumentStore = "document_store"
	SinkSpreadsheet   = "spreadsheet"
	SinkATS           = "ats"
)

// QuestionnaireInput is a quiz or survey submission. Client-computed trait
// scores are accepted on the wire and ignored; scores are always recomputed.
type QuestionnaireInput struct {
	Kind         domain.QuestionnaireKind `json:"-"`
	Name         string                   `json:"name"`
	Email        string                   `json:"email" validate:"required,email"`
	CandidateID  string                   `json:"candidateId,omitempty"`
	Position     string                   `json:"position,omitempty"`
	ATSURL       string                   `json:"manatalUrl,omitempty"`
	InterviewURL string                   `json:"hireflixUrl,omitempty"`
	Answers      map[string]int           `json:"answers" validate:"required,min=1"`
	TraitScores  map[string]float64       `json:"traitScores,omitempty"`
}

// SinkResult reports one questionnaire fan-out write.
type SinkResult struct {
	Sink    string `json:"sink"`
	OK      bool   `json:"ok"`
	Skipped bool   `json:"skipped,omitempty"`
	Error   string `json:"error,omitempty"`
}

type Submission struct {
	Result domain.QuestionnaireResult `json:"result"`
	Sinks  []SinkResult               `json:"sinks"`
}

func (e Engine) mapping(kind domain.QuestionnaireKind) scoring.Mapping {
	return scoring.NewMapping(e.Config.Questionnaire(kind))
}

// ScoreAnswers computes trait averages for a kind without persisting.
func (e Engine) ScoreAnswers(kind domain.QuestionnaireKind, answers map[string]int) (domain.TraitScores, error) {
	if kind != domain.KindQuiz && kind != domain.KindSurvey {
		return domain.TraitScores{}, apperr.Validation("kind", "Unknown questionnaire kind: %s", kind)
	}
	parsed, err := scoring.ParseAnswers(answers)
	if err != nil {
		return domain.TraitScores{}, apperr.Validation("answers", "%v", err)
	}
	return e.mapping(kind).Score(parsed), nil
}

// SubmitQuestionnaire scores the answers and writes them to the document
// store, the spreadsheet and the ATS in that order. Each sink is independent:
// a failure is reported in the result and does not stop the others.
func (e Engine) SubmitQuestionnaire(ctx context.Context, in QuestionnaireInput) (Submission, error) {
	if in.Kind == domain.KindQuiz && in.Name == "" {
		return Submission{}, apperr.MissingField("name")
	}
	if err := e.validate(in); err != nil {
		return Submission{}, err
	}
	scores, err := e.ScoreAnswers(in.Kind, in.Answers)
	if err != nil {
		return Submission{}, err
	}
	parsed, _ := scoring.ParseAnswers(in.Answers)
	res := domain.QuestionnaireResult{
		ID:           uuid.NewString(),
		Kind:         in.Kind,
		CandidateID:  in.CandidateID,
		Name:         in.Name,
		Email:        in.Email,
		Answers:      scoring.FormatAnswers(parsed),
		TraitScores:  scores,
		ATSURL:       in.ATSURL,
		InterviewURL: in.InterviewURL,
		CreatedAt:    e.stamp(),
	}
	if res.ATSURL == "" && in.CandidateID != "" {
		res.ATSURL = e.ATS.CandidateURL(in.CandidateID)
	}

	sub := Submission{Result: res}
	sub.Sinks = append(sub.Sinks,
		e.sinkResult(SinkDocumentStore, e.storeResult(ctx, res)),
		e.sinkResult(SinkSpreadsheet, e.appendRow(ctx, res)),
		e.sinkResult(SinkATS, e.patchTraits(ctx, res)),
	)
	e.log().Info("questionnaire submitted", "kind", in.Kind, "email", in.Email, "candidate_id", in.CandidateID, "result_id", res.ID)
	return sub, nil
}

var errSinkSkipped = errors.New("sink skipped")

func (e Engine) sinkResult(sink string, err error) SinkResult {
	switch {
	case errors.Is(err, errSinkSkipped):
		return SinkResult{Sink: sink, Skipped: true}
	case err != nil:
		e.Metrics.SinkWrite(sink, false)
		e.log().Warn("questionnaire sink failed", "sink", sink, "err", err)
		return SinkResult{Sink: sink, Error: err.Error()}
	}
	e.Metrics.SinkWrite(sink, true)
	return SinkResult{Sink: sink, OK: true}
}

// storeResult appends the result, records the portal user and flags the
// matching application.
func (e Engine) storeResult(ctx context.Context, res domain.QuestionnaireResult) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertResult(ctx, tx, res); err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	if _, err := e.Repo.TouchUser(ctx, tx, res.Email, res.CreatedAt); err != nil {
		return fmt.Errorf("record user: %w", err)
	}
	a, err := e.Repo.FindApplication(ctx, tx, res.CandidateID, res.Email)
	switch {
	case err == nil:
		if res.Kind == domain.KindQuiz {
			a.QuizCompleted = true
		} else {
			a.SurveyCompleted = true
			advanceStatus(&a, domain.StatusSurveyCompleted)
		}
		a.UpdatedAt = res.CreatedAt
		if err := e.Repo.UpdateApplication(ctx, tx, a); err != nil {
			return fmt.Errorf("update application: %w", err)
		}
	case !errors.Is(err, repo.ErrNotFound):
		return err
	}
	if err := e.appendEvent(ctx, tx, events.QuestionnaireSubmitted, "result", res.ID, "applicant", events.EventPayload{
		"kind":         string(res.Kind),
		"candidate_id": res.CandidateID,
		"email":        res.Email,
		"trait_scores": res.TraitScores,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) appendRow(ctx context.Context, res domain.QuestionnaireResult) error {
	if e.Sheets == nil {
		return errSinkSkipped
	}
	if _, off := e.Sheets.(sheets.Discard); off {
		return errSinkSkipped
	}
	q := e.Config.Questionnaire(res.Kind)
	row := sheets.BuildRow(sheets.SheetTitle(q.Title), res, scoring.NewMapping(q))
	return e.Sheets.Append(ctx, row)
}

// traitFields renders the ATS custom fields for a result.
func traitFields(res domain.QuestionnaireResult) map[string]any {
	fields := make(map[string]any, len(domain.Traits)+2)
	for _, t := range domain.Traits {
		fields[personalityField(t)] = scoring.FormatScore(res.TraitScores.Get(t))
	}
	if res.Kind == domain.KindQuiz {
		fields["quiz_completed"] = true
		fields["quiz_completed_at"] = res.CreatedAt
	} else {
		fields["survey_completed"] = true
		fields["survey_completed_at"] = res.CreatedAt
	}
	return fields
}

func personalityField(t domain.Trait) string {
	return "personality_" + strings.ToLower(string(t))
}

func (e Engine) patchTraits(ctx context.Context, res domain.QuestionnaireResult) error {
	if res.CandidateID == "" {
		return errSinkSkipped
	}
	err := e.ATS.UpdateCustomFields(ctx, res.CandidateID, traitFields(res))
	if apperr.Is(err, apperr.KindConfig) {
		return errSinkSkipped
	}
	return err
}
