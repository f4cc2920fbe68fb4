package server

import (
	"internfunnel/internal/ats"
	"internfunnel/internal/domain"
	"internfunnel/internal/email"
	"internfunnel/internal/engine"
)

// Request payloads. Required fields are checked by the engine so that a
// missing field is reported by name; the schema only describes the shape.

type CandidateRequest struct {
	_               struct{} `json:"-" additionalProperties:"true"`
	FirstName       string   `json:"first_name,omitempty"`
	LastName        string   `json:"last_name,omitempty"`
	Email           string   `json:"email,omitempty" format:"email"`
	Phone           string   `json:"phone,omitempty"`
	Location        string   `json:"location,omitempty"`
	PassportCountry string   `json:"passport_country,omitempty"`
	PositionID      string   `json:"position_id,omitempty"`
	PositionTitle   string   `json:"position_title,omitempty"`
	Notes           string   `json:"notes,omitempty"`
	Consent         bool     `json:"consent,omitempty"`
}

func (r CandidateRequest) input() engine.CandidateInput {
	return engine.CandidateInput{
		FirstName:       r.FirstName,
		LastName:        r.LastName,
		Email:           r.Email,
		Phone:           r.Phone,
		Location:        r.Location,
		PassportCountry: r.PassportCountry,
		PositionID:      r.PositionID,
		PositionTitle:   r.PositionTitle,
		Notes:           r.Notes,
		Consent:         r.Consent,
	}
}

type ApplicationRequest struct {
	_ struct{} `json:"-" additionalProperties:"true"`
	CandidateRequest
	CandidateID string `json:"candidate_id,omitempty"`
	ResumeURL   string `json:"resume_url,omitempty"`
}

func (r ApplicationRequest) input() engine.ApplicationInput {
	return engine.ApplicationInput{
		CandidateInput: r.CandidateRequest.input(),
		CandidateID:    r.CandidateID,
		ResumeURL:      r.ResumeURL,
	}
}

type CheckCandidateRequest struct {
	Email string `json:"email,omitempty"`
}

type AssociatePositionRequest struct {
	PositionID string `json:"position_id,omitempty"`
}

type InviteRequest struct {
	PositionID  string `json:"position_id,omitempty"`
	Email       string `json:"candidate_email,omitempty"`
	Name        string `json:"candidate_name,omitempty"`
	CandidateID string `json:"candidate_id,omitempty"`
}

type InterviewResultsRequest struct {
	InterviewID string `json:"interview_id,omitempty"`
	CandidateID string `json:"candidate_id,omitempty"`
}

type QuestionnaireRequest struct {
	_            struct{}           `json:"-" additionalProperties:"true"`
	Name         string             `json:"name,omitempty"`
	Email        string             `json:"email,omitempty"`
	CandidateID  string             `json:"candidateId,omitempty"`
	Position     string             `json:"position,omitempty"`
	ATSURL       string             `json:"manatalUrl,omitempty"`
	InterviewURL string             `json:"hireflixUrl,omitempty"`
	Answers      map[string]int     `json:"answers,omitempty"`
	TraitScores  map[string]float64 `json:"traitScores,omitempty" doc:"Accepted and ignored; scores are recomputed server-side."`
}

func (r QuestionnaireRequest) input(kind domain.QuestionnaireKind) engine.QuestionnaireInput {
	return engine.QuestionnaireInput{
		Kind:         kind,
		Name:         r.Name,
		Email:        r.Email,
		CandidateID:  r.CandidateID,
		Position:     r.Position,
		ATSURL:       r.ATSURL,
		InterviewURL: r.InterviewURL,
		Answers:      r.Answers,
		TraitScores:  r.TraitScores,
	}
}

type SignalRequest struct {
	CandidateID string `json:"candidate_id,omitempty"`
	InterviewID string `json:"interview_id,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

type UpdateApplicationRequest struct {
	FirstName     *string `json:"first_name,omitempty"`
	LastName      *string `json:"last_name,omitempty"`
	Email         *string `json:"email,omitempty"`
	Phone         *string `json:"phone,omitempty"`
	Location      *string `json:"location,omitempty"`
	PositionID    *string `json:"position_id,omitempty"`
	PositionTitle *string `json:"position_title,omitempty"`
	Message       *string `json:"message,omitempty"`
	Status        *string `json:"status,omitempty"`
}

func (r UpdateApplicationRequest) patch() engine.ApplicationPatch {
	return engine.ApplicationPatch{
		FirstName:     r.FirstName,
		LastName:      r.LastName,
		Email:         r.Email,
		Phone:         r.Phone,
		Location:      r.Location,
		PositionID:    r.PositionID,
		PositionTitle: r.PositionTitle,
		Message:       r.Message,
		Status:        r.Status,
	}
}

type SendEmailRequest struct {
	From    string   `json:"from,omitempty"`
	To      []string `json:"to,omitempty"`
	ReplyTo string   `json:"reply_to,omitempty"`
	Subject string   `json:"subject,omitempty"`
	HTML    string   `json:"html,omitempty"`
}

func (r SendEmailRequest) message() email.Message {
	return email.Message{From: r.From, To: r.To, ReplyTo: r.ReplyTo, Subject: r.Subject, HTML: r.HTML}
}

// Response payloads

type CandidateResponse struct {
	Success   bool          `json:"success"`
	Candidate ats.Candidate `json:"candidate"`
}

type CandidateCheckResponse struct {
	Success bool `json:"success"`
	engine.CandidateCheck
}

type StatusResponse struct {
	Success bool              `json:"success"`
	Status  engine.StatusView `json:"status"`
}

type ResumeResponse struct {
	Success bool             `json:"success"`
	Resume  ats.ResumeUpload `json:"resume"`
}

type ApplicationResponse struct {
	Success     bool               `json:"success"`
	Application domain.Application `json:"application"`
}

type ApplicationListResponse struct {
	Success      bool                 `json:"success"`
	Applications []domain.Application `json:"applications"`
	Count        int                  `json:"count"`
}

type ApplyResponse struct {
	Success bool `json:"success"`
	engine.ApplyResult
}

type PositionsResponse struct {
	Success   bool              `json:"success"`
	Positions []domain.Position `json:"positions"`
}

type InterviewResponse struct {
	Success   bool             `json:"success"`
	Interview domain.Interview `json:"interview"`
	Message   string           `json:"message,omitempty"`
}

type InterviewResultsResponse struct {
	Success bool `json:"success"`
	engine.InterviewResults
}

type SubmissionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	engine.Submission
}

type ResultListResponse struct {
	Success bool                         `json:"success"`
	Results []domain.QuestionnaireResult `json:"results"`
	Count   int                          `json:"count"`
}

type UserListResponse struct {
	Success bool          `json:"success"`
	Users   []domain.User `json:"users"`
	Count   int           `json:"count"`
}

type CandidatePageResponse struct {
	Success bool `json:"success"`
	ats.Page
}

type LoginResponse struct {
	Success   bool   `json:"success"`
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at" format:"date-time"`
}

type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type StatsResponse struct {
	Success bool `json:"success"`
	engine.Stats
}

type EmailResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
}

type ConnectivityResponse struct {
	Success  bool                  `json:"success"`
	Healthy  bool                  `json:"healthy"`
	Services []engine.ServiceProbe `json:"services"`
}

type EventListResponse struct {
	Success bool           `json:"success"`
	Events  []domain.Event `json:"events"`
}
