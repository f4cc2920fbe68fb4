package domain

import (
	"errors"
	"fmt"
)

// ApplicationStatus is the candidate-journey state held on an application record.
type ApplicationStatus string

const (
	StatusSubmitted               ApplicationStatus = "application_submitted"
	StatusResumeUploaded          ApplicationStatus = "resume_uploaded"
	StatusInterviewInvited        ApplicationStatus = "interview_invited"
	StatusInterviewAlreadyInvited ApplicationStatus = "interview_already_invited"
	StatusInterviewFallback       ApplicationStatus = "interview_fallback"
	StatusSurveyCompleted         ApplicationStatus = "survey_completed"
	StatusInterviewCompleted      ApplicationStatus = "interview_completed"
	StatusUnderReview             ApplicationStatus = "under_review"
	StatusAccepted                ApplicationStatus = "accepted"
	StatusRejected                ApplicationStatus = "rejected"
	StatusWithdrawn               ApplicationStatus = "withdrawn"
)

// ApplicationStatuses lists every journey state in funnel order.
var ApplicationStatuses = []ApplicationStatus{
	StatusSubmitted,
	StatusResumeUploaded,
	StatusInterviewInvited,
	StatusInterviewAlreadyInvited,
	StatusInterviewFallback,
	StatusSurveyCompleted,
	StatusInterviewCompleted,
	StatusUnderReview,
	StatusAccepted,
	StatusRejected,
	StatusWithdrawn,
}

var exits = []ApplicationStatus{StatusUnderReview, StatusRejected, StatusWithdrawn}

var transitions = map[ApplicationStatus][]ApplicationStatus{
	StatusSubmitted: append([]ApplicationStatus{
		StatusResumeUploaded, StatusInterviewInvited, StatusInterviewAlreadyInvited,
		StatusInterviewFallback, StatusSurveyCompleted, StatusInterviewCompleted,
	}, exits...),
	StatusResumeUploaded: append([]ApplicationStatus{
		StatusInterviewInvited, StatusInterviewAlreadyInvited, StatusInterviewFallback,
		StatusSurveyCompleted, StatusInterviewCompleted,
	}, exits...),
	StatusInterviewInvited: append([]ApplicationStatus{
		StatusSurveyCompleted, StatusInterviewCompleted,
	}, exits...),
	StatusInterviewAlreadyInvited: append([]ApplicationStatus{
		StatusInterviewInvited, StatusSurveyCompleted, StatusInterviewCompleted,
	}, exits...),
	StatusInterviewFallback: append([]ApplicationStatus{
		StatusInterviewInvited, StatusSurveyCompleted, StatusInterviewCompleted,
	}, exits...),
	StatusSurveyCompleted: append([]ApplicationStatus{
		StatusInterviewInvited, StatusInterviewCompleted,
	}, exits...),
	StatusInterviewCompleted: append([]ApplicationStatus{StatusAccepted}, exits...),
	StatusUnderReview:        {StatusAccepted, StatusRejected, StatusWithdrawn},
	StatusAccepted:           nil,
	StatusRejected:           nil,
	StatusWithdrawn:          nil,
}

var ErrInvalidTransition = errors.New("invalid status transition")

// TransitionError reports a rejected status change.
type TransitionError struct {
	From ApplicationStatus
	To   ApplicationStatus
}

func (e TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

func (e TransitionError) Unwrap() error { return ErrInvalidTransition }

func (s ApplicationStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether no further transitions are allowed.
func (s ApplicationStatus) Terminal() bool {
	next, ok := transitions[s]
	return ok && len(next) == 0
}

func ParseApplicationStatus(v string) (ApplicationStatus, error) {
	s := ApplicationStatus(v)
	if !s.Valid() {
		return "", fmt.Errorf("invalid status %q", v)
	}
	return s, nil
}

// CanTransition reports whether from -> to is allowed. Writing the same state is allowed.
func CanTransition(from, to ApplicationStatus) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition returns a TransitionError when from -> to is not allowed.
func CheckTransition(from, to ApplicationStatus) error {
	if CanTransition(from, to) {
		return nil
	}
	return TransitionError{From: from, To: to}
}

// InterviewStatus is the cached status of an externally held interview.
type InterviewStatus string

const (
	InterviewPending        InterviewStatus = "pending"
	InterviewCompleted      InterviewStatus = "completed"
	InterviewAlreadyInvited InterviewStatus = "already_invited"
	InterviewFallback       InterviewStatus = "fallback"
	InterviewNotAvailable   InterviewStatus = "not_available"
	InterviewFetchFailed    InterviewStatus = "fetch_failed"
)

// Trait is one of the five personality dimensions.
type Trait string

const (
	Extraversion       Trait = "extraversion"
	Conscientiousness  Trait = "conscientiousness"
	Agreeableness      Trait = "agreeableness"
	Openness           Trait = "openness"
	EmotionalStability Trait = "emotionalStability"
)

// Traits is the fixed column order used by every sink.
var Traits = []Trait{Extraversion, Conscientiousness, Agreeableness, Openness, EmotionalStability}

func (t Trait) Valid() bool {
	for _, known := range Traits {
		if t == known {
			return true
		}
	}
	return false
}

// TraitScores holds the per-trait answer averages.
type TraitScores struct {
	Extraversion       float64 `json:"extraversion"`
	Conscientiousness  float64 `json:"conscientiousness"`
	Agreeableness      float64 `json:"agreeableness"`
	Openness           float64 `json:"openness"`
	EmotionalStability float64 `json:"emotionalStability"`
}

func (s TraitScores) Get(t Trait) float64 {
	switch t {
	case Extraversion:
		return s.Extraversion
	case Conscientiousness:
		return s.Conscientiousness
	case Agreeableness:
		return s.Agreeableness
	case Openness:
		return s.Openness
	case EmotionalStability:
		return s.EmotionalStability
	}
	return 0
}

func (s *TraitScores) Set(t Trait, v float64) {
	switch t {
	case Extraversion:
		s.Extraversion = v
	case Conscientiousness:
		s.Conscientiousness = v
	case Agreeableness:
		s.Agreeableness = v
	case Openness:
		s.Openness = v
	case EmotionalStability:
		s.EmotionalStability = v
	}
}

type Application struct {
	ID                 string            `json:"id"`
	CandidateID        string            `json:"candidate_id,omitempty"`
	FirstName          string            `json:"first_name"`
	LastName           string            `json:"last_name"`
	Email              string            `json:"email"`
	Phone              string            `json:"phone,omitempty"`
	Location           string            `json:"location,omitempty"`
	PassportCountry    string            `json:"passport_country,omitempty"`
	PositionID         string            `json:"position_id,omitempty"`
	PositionTitle      string            `json:"position_title,omitempty"`
	ResumeURL          string            `json:"resume_url,omitempty"`
	Message            string            `json:"message,omitempty"`
	Consent            bool              `json:"consent"`
	Status             ApplicationStatus `json:"status"`
	InterviewID        string            `json:"interview_id,omitempty"`
	InterviewURL       string            `json:"interview_url,omitempty"`
	InterviewStatus    InterviewStatus   `json:"interview_status,omitempty"`
	SurveyCompleted    bool              `json:"survey_completed"`
	QuizCompleted      bool              `json:"quiz_completed"`
	InterviewCompleted bool              `json:"interview_completed"`
	CreatedAt          string            `json:"created_at" format:"date-time"`
	UpdatedAt          string            `json:"updated_at" format:"date-time"`
}

func (a Application) FullName() string {
	switch {
	case a.FirstName == "":
		return a.LastName
	case a.LastName == "":
		return a.FirstName
	}
	return a.FirstName + " " + a.LastName
}

// QuestionnaireKind distinguishes the 10-question quiz from the 30-question survey.
type QuestionnaireKind string

const (
	KindQuiz   QuestionnaireKind = "quiz"
	KindSurvey QuestionnaireKind = "survey"
)

type QuestionnaireResult struct {
	ID           string            `json:"id"`
	Kind         QuestionnaireKind `json:"kind" enum:"quiz,survey"`
	CandidateID  string            `json:"candidate_id,omitempty"`
	Name         string            `json:"name"`
	Email        string            `json:"email"`
	Answers      map[string]int    `json:"answers"`
	TraitScores  TraitScores       `json:"trait_scores"`
	ATSURL       string            `json:"ats_url,omitempty"`
	InterviewURL string            `json:"interview_url,omitempty"`
	CreatedAt    string            `json:"created_at" format:"date-time"`
}

// User is a candidate portal identity.
type User struct {
	UID          string `json:"uid"`
	Email        string `json:"email,omitempty"`
	IsAnonymous  bool   `json:"is_anonymous"`
	CreatedAt    string `json:"created_at" format:"date-time"`
	LastSignInAt string `json:"last_sign_in_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Actor      string `json:"actor"`
	Payload    string `json:"payload_json"`
}

// Position is an open role offered through the interview provider.
type Position struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	Location       string   `json:"location,omitempty"`
	Department     string   `json:"department,omitempty"`
	EmploymentType string   `json:"employment_type"`
	Status         string   `json:"status"`
	Tags           []string `json:"tags,omitempty"`
}

// Interview is the local view of an invitation or a fetched interview.
type Interview struct {
	ID            string          `json:"id"`
	PositionID    string          `json:"position_id"`
	CandidateID   string          `json:"candidate_id,omitempty"`
	Status        InterviewStatus `json:"status"`
	URL           *string         `json:"interview_url"`
	VideoURL      string          `json:"video_url,omitempty"`
	TranscriptURL string          `json:"transcript_url,omitempty"`
	Score         *float64        `json:"score,omitempty"`
	Feedback      string          `json:"feedback,omitempty"`
	CompletedAt   string          `json:"completed_at,omitempty"`
	CreatedAt     string          `json:"created_at,omitempty"`
	Message       string          `json:"message,omitempty"`
}
