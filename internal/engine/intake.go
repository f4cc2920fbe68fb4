package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"internfunnel/internal/apperr"
	"internfunnel/internal/ats"
	"internfunnel/internal/db"
	"internfunnel/internal/domain"
	"internfunnel/internal/events"
	"internfunnel/internal/interview"
	"internfunnel/internal/repo"
)

// MaxResumeBytes caps uploaded resumes.
const MaxResumeBytes = 10 << 20

type CandidateInput struct {
	FirstName       string `json:"first_name" validate:"required"`
	LastName        string `json:"last_name" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Phone           string `json:"phone,omitempty"`
	Location        string `json:"location,omitempty"`
	PassportCountry string `json:"passport_country,omitempty"`
	PositionID      string `json:"position_id,omitempty"`
	PositionTitle   string `json:"position_title,omitempty"`
	Notes           string `json:"notes,omitempty"`
	Consent         bool   `json:"consent"`
}

func (in CandidateInput) fullName() string {
	return strings.TrimSpace(in.FirstName + " " + in.LastName)
}

// candidateProfile derives the ATS score and tags for a new candidate.
func candidateProfile(in CandidateInput) (int, []string) {
	score := 50
	tags := []string{"Global-Internship-Initiative"}
	if in.PositionTitle != "" {
		tags = append(tags, "Position-"+strings.Join(strings.Fields(in.PositionTitle), "-"))
		score += 10
	}
	tags = append(tags, "Website-Application", "New-Candidate")
	return score, tags
}

// CreateCandidate registers the applicant with the ATS.
func (e Engine) CreateCandidate(ctx context.Context, in CandidateInput) (ats.Candidate, error) {
	if err := e.validate(in); err != nil {
		return ats.Candidate{}, err
	}
	score, tags := candidateProfile(in)
	position := in.PositionTitle
	if position == "" {
		position = "General Application"
	}
	cand, err := e.ATS.CreateCandidate(ctx, ats.NewCandidate{
		FirstName: in.FirstName,
		LastName:  in.LastName,
		FullName:  in.fullName(),
		Email:     in.Email,
		Phone:     in.Phone,
		Source:    e.Config.ATS.Source,
		Tags:      tags,
		CustomFields: map[string]any{
			ats.FieldPositionApplied: position,
			"application_notes":      in.Notes,
			"candidate_score":        score,
			"application_source":     "Funnel API",
			"application_flow":       "Direct Application Form",
		},
	})
	e.Metrics.IntakeStep("create_candidate", err == nil)
	if err != nil {
		e.log().Error("create candidate failed", "email", in.Email, "err", err)
		return ats.Candidate{}, err
	}
	e.log().Info("candidate created", "candidate_id", cand.ID.String(), "email", in.Email)
	return cand, nil
}

type ApplicationInput struct {
	CandidateInput
	CandidateID string `json:"candidate_id,omitempty"`
	ResumeURL   string `json:"resume_url,omitempty"`
}

// SaveApplication mirrors an application into the document store. A second
// save for the same candidate updates the existing record.
func (e Engine) SaveApplication(ctx context.Context, in ApplicationInput) (domain.Application, error) {
	if err := e.validate(in.CandidateInput); err != nil {
		return domain.Application{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Application{}, err
	}
	defer tx.Rollback()

	now := e.stamp()
	existing, err := e.Repo.FindApplication(ctx, tx, in.CandidateID, "")
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return domain.Application{}, err
	}
	created := errors.Is(err, repo.ErrNotFound)
	a := existing
	if created {
		a = domain.Application{ID: uuid.NewString(), Status: domain.StatusSubmitted, CreatedAt: now}
	}
	a.CandidateID = in.CandidateID
	a.FirstName = in.FirstName
	a.LastName = in.LastName
	a.Email = in.Email
	a.Phone = in.Phone
	a.Location = in.Location
	a.PassportCountry = in.PassportCountry
	a.PositionID = in.PositionID
	a.PositionTitle = in.PositionTitle
	a.Message = in.Notes
	a.Consent = in.Consent
	if in.ResumeURL != "" {
		a.ResumeURL = in.ResumeURL
		advanceStatus(&a, domain.StatusResumeUploaded)
	}
	a.UpdatedAt = now

	if created {
		err = e.Repo.InsertApplication(ctx, tx, a)
	} else {
		err = e.Repo.UpdateApplication(ctx, tx, a)
	}
	if err != nil {
		return domain.Application{}, fmt.Errorf("save application: %w", err)
	}
	if _, err := e.Repo.TouchUser(ctx, tx, a.Email, now); err != nil {
		return domain.Application{}, fmt.Errorf("record user: %w", err)
	}
	if created {
		if err := e.appendEvent(ctx, tx, events.ApplicationCreated, "application", a.ID, "applicant", events.EventPayload{
			"candidate_id": a.CandidateID,
			"email":        a.Email,
			"position_id":  a.PositionID,
			"status":       string(a.Status),
		}); err != nil {
			return domain.Application{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Application{}, err
	}
	e.Metrics.IntakeStep("save_application", true)
	return a, nil
}

// UploadResume sends the resume to the ATS and keeps a local copy for
// admins. The local copy and the application update are best-effort.
func (e Engine) UploadResume(ctx context.Context, candidateID string, r ats.Resume) (ats.ResumeUpload, error) {
	if candidateID == "" {
		return ats.ResumeUpload{}, apperr.MissingField("candidateId")
	}
	if len(r.Data) == 0 {
		return ats.ResumeUpload{}, apperr.MissingField("resume")
	}
	if len(r.Data) > MaxResumeBytes {
		return ats.ResumeUpload{}, apperr.Validation("resume", "Resume exceeds the %d MB limit", MaxResumeBytes>>20)
	}
	if r.FileName == "" {
		r.FileName = "resume.pdf"
	}
	upload, err := e.ATS.UploadResume(ctx, candidateID, r)
	e.Metrics.IntakeStep("upload_resume", err == nil)
	if err != nil {
		e.log().Error("resume upload failed", "candidate_id", candidateID, "err", err)
		return ats.ResumeUpload{}, err
	}

	local, err := e.mirrorResume(candidateID, r)
	if err != nil {
		e.log().Warn("resume mirror failed", "candidate_id", candidateID, "err", err)
	}
	resumeURL := upload.FileURL
	if resumeURL == "" {
		resumeURL = local
	}
	if a, err := e.Repo.FindApplication(ctx, nil, candidateID, ""); err == nil {
		a.ResumeURL = resumeURL
		advanceStatus(&a, domain.StatusResumeUploaded)
		a.UpdatedAt = e.stamp()
		if err := e.Repo.UpdateApplication(ctx, nil, a); err != nil {
			e.log().Warn("application resume update failed", "application_id", a.ID, "err", err)
		}
	}
	if err := e.appendEvent(ctx, nil, events.ResumeUploaded, "candidate", candidateID, "applicant", events.EventPayload{
		"file_name": r.FileName,
		"file_url":  resumeURL,
		"local":     local,
	}); err != nil {
		e.log().Warn("event append failed", "type", events.ResumeUploaded, "err", err)
	}
	return upload, nil
}

// mirrorResume stores the file as <candidate>_<millis>.<ext> and returns
// the name it was stored under.
func (e Engine) mirrorResume(candidateID string, r ats.Resume) (string, error) {
	dir := db.ResumeDir(e.Config.Store.Workspace)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	ext := strings.ToLower(filepath.Ext(r.FileName))
	if ext == "" {
		ext = ".pdf"
	}
	name := fmt.Sprintf("%s_%d%s", sanitizeName(candidateID), e.now().UnixMilli(), ext)
	if err := os.WriteFile(filepath.Join(dir, name), r.Data, 0o644); err != nil {
		return "", err
	}
	return name, nil
}

func sanitizeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}

// AssociatePosition links a candidate to a job opening in the ATS.
func (e Engine) AssociatePosition(ctx context.Context, candidateID, positionID string) error {
	if candidateID == "" {
		return apperr.MissingField("candidate_id")
	}
	if positionID == "" {
		return apperr.MissingField("position_id")
	}
	err := e.ATS.AddToJob(ctx, candidateID, positionID)
	e.Metrics.IntakeStep("associate_position", err == nil)
	if err != nil {
		return err
	}
	if a, err := e.Repo.FindApplication(ctx, nil, candidateID, ""); err == nil && a.PositionID != positionID {
		a.PositionID = positionID
		a.UpdatedAt = e.stamp()
		if err := e.Repo.UpdateApplication(ctx, nil, a); err != nil {
			e.log().Warn("application position update failed", "application_id", a.ID, "err", err)
		}
	}
	return nil
}

// ListPositions returns the open positions offered by the interview provider.
func (e Engine) ListPositions(ctx context.Context) ([]domain.Position, error) {
	return e.Interview.ListPositions(ctx)
}

type InviteInput struct {
	PositionID  string `json:"position_id" validate:"required"`
	Email       string `json:"candidate_email" validate:"required,email"`
	Name        string `json:"candidate_name" validate:"required"`
	CandidateID string `json:"candidate_id,omitempty"`
}

const (
	msgAlreadyInvited = "Candidate was already invited to this position. Please check your email for the interview link."
	msgFallback       = "We could not schedule your video interview automatically. Our team will contact you with next steps."
)

// Invite requests an interview invitation. An existing invitation and a
// provider failure both degrade to a successful response carrying a
// message, so the application is never blocked on this step.
func (e Engine) Invite(ctx context.Context, in InviteInput) (domain.Interview, error) {
	if err := e.validate(in); err != nil {
		return domain.Interview{}, err
	}
	if !e.Interview.Configured() {
		return domain.Interview{}, apperr.Config("interview provider API key not configured")
	}
	iv := domain.Interview{
		PositionID:  in.PositionID,
		CandidateID: in.CandidateID,
		CreatedAt:   e.stamp(),
	}
	var next domain.ApplicationStatus
	inv, err := e.Interview.Invite(ctx, in.PositionID, in.Email, in.Name)
	switch {
	case err == nil:
		iv.ID = inv.ID
		iv.Status = domain.InterviewPending
		url := inv.URL
		iv.URL = &url
		next = domain.StatusInterviewInvited
	case errors.Is(err, interview.ErrAlreadyInvited):
		iv.ID = fmt.Sprintf("existing_%s_%d", in.PositionID, e.now().UnixMilli())
		iv.Status = domain.InterviewAlreadyInvited
		iv.Message = msgAlreadyInvited
		next = domain.StatusInterviewAlreadyInvited
	default:
		e.log().Warn("interview invitation failed, using fallback", "email", in.Email, "position_id", in.PositionID, "err", err)
		iv.ID = "fallback-" + uuid.NewString()
		iv.Status = domain.InterviewFallback
		iv.Message = msgFallback
		if u := e.Config.Interview.FallbackURL; u != "" {
			iv.URL = &u
		}
		next = domain.StatusInterviewFallback
	}
	e.Metrics.IntakeStep("invite", err == nil)

	e.recordInvitation(ctx, in, iv, next)
	return iv, nil
}

// recordInvitation updates the local application and the ATS profile.
// Both writes are best-effort.
func (e Engine) recordInvitation(ctx context.Context, in InviteInput, iv domain.Interview, next domain.ApplicationStatus) {
	if a, err := e.Repo.FindApplication(ctx, nil, in.CandidateID, in.Email); err == nil {
		a.InterviewID = iv.ID
		a.InterviewStatus = iv.Status
		if iv.URL != nil {
			a.InterviewURL = *iv.URL
		}
		if a.PositionID == "" {
			a.PositionID = in.PositionID
		}
		advanceStatus(&a, next)
		a.UpdatedAt = e.stamp()
		if err := e.Repo.UpdateApplication(ctx, nil, a); err != nil {
			e.log().Warn("application interview update failed", "application_id", a.ID, "err", err)
		}
	}
	if in.CandidateID != "" && iv.Status == domain.InterviewPending && e.ATS.Configured() {
		fields := map[string]any{
			ats.FieldInterviewID:      iv.ID,
			ats.FieldInterviewStatus:  "scheduled",
			ats.FieldApplicationStage: "video_interview_scheduled",
		}
		if err := e.ATS.UpdateCustomFields(ctx, in.CandidateID, fields); err != nil {
			e.log().Warn("ats invitation patch failed", "candidate_id", in.CandidateID, "err", err)
		}
	}
	payload := events.EventPayload{
		"interview_id": iv.ID,
		"position_id":  in.PositionID,
		"status":       string(iv.Status),
		"email":        in.Email,
	}
	if err := e.appendEvent(ctx, nil, events.InterviewInvited, "candidate", in.CandidateID, "applicant", payload); err != nil {
		e.log().Warn("event append failed", "type", events.InterviewInvited, "err", err)
	}
}

// CandidateCheck is the returning-applicant lookup result.
type CandidateCheck struct {
	Exists    bool         `json:"exists"`
	Candidate *ats.Summary `json:"candidate,omitempty"`
	Status    string       `json:"status,omitempty"`
	Message   string       `json:"message"`
	NextStep  string       `json:"next_step,omitempty"`
	UIMessage string       `json:"ui_message,omitempty"`
}

// CheckCandidate looks an email up in the ATS and derives where the
// applicant is in the journey.
func (e Engine) CheckCandidate(ctx context.Context, emailAddr string) (CandidateCheck, error) {
	emailAddr = strings.TrimSpace(emailAddr)
	if emailAddr == "" {
		return CandidateCheck{}, apperr.MissingField("email")
	}
	cand, err := e.ATS.FindByEmail(ctx, emailAddr)
	if apperr.Is(err, apperr.KindNotFound) {
		return CandidateCheck{Exists: false, Message: "No existing application found. You can proceed with your application."}, nil
	}
	if err != nil {
		return CandidateCheck{}, err
	}
	summary := ats.Summarize(cand)
	progress := ats.DeriveProgress(cand)
	return CandidateCheck{
		Exists:    true,
		Candidate: &summary,
		Status:    progress.Status,
		Message:   progress.Message,
		NextStep:  progress.NextStep,
		UIMessage: fmt.Sprintf("Welcome back! You have already applied for the %s position.", summary.PositionApplied),
	}, nil
}

// StatusView is the server-held journey state for a candidate.
type StatusView struct {
	CandidateID        string                 `json:"candidate_id"`
	Status             string                 `json:"status"`
	InterviewStatus    domain.InterviewStatus `json:"interview_status,omitempty"`
	InterviewURL       string                 `json:"interview_url,omitempty"`
	SurveyCompleted    bool                   `json:"survey_completed"`
	QuizCompleted      bool                   `json:"quiz_completed"`
	InterviewCompleted bool                   `json:"interview_completed"`
	Message            string                 `json:"message,omitempty"`
	NextStep           string                 `json:"next_step,omitempty"`
	Source             string                 `json:"source" enum:"local,ats"`
	UpdatedAt          string                 `json:"updated_at,omitempty"`
}

// CandidateStatus reads the local application first and falls back to the
// ATS custom fields.
func (e Engine) CandidateStatus(ctx context.Context, candidateID string) (StatusView, error) {
	if candidateID == "" {
		return StatusView{}, apperr.MissingField("candidate_id")
	}
	a, err := e.Repo.FindApplication(ctx, nil, candidateID, "")
	if err == nil {
		return StatusView{
			CandidateID:        candidateID,
			Status:             string(a.Status),
			InterviewStatus:    a.InterviewStatus,
			InterviewURL:       a.InterviewURL,
			SurveyCompleted:    a.SurveyCompleted,
			QuizCompleted:      a.QuizCompleted,
			InterviewCompleted: a.InterviewCompleted,
			Source:             "local",
			UpdatedAt:          a.UpdatedAt,
		}, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return StatusView{}, err
	}
	cand, err := e.ATS.GetCandidate(ctx, candidateID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) || apperr.Is(err, apperr.KindConfig) {
			return StatusView{}, apperr.NotFound("no application for candidate %s", candidateID)
		}
		return StatusView{}, err
	}
	progress := ats.DeriveProgress(cand)
	return StatusView{
		CandidateID:        candidateID,
		Status:             progress.Status,
		InterviewCompleted: progress.Status == "interview_completed",
		Message:            progress.Message,
		NextStep:           progress.NextStep,
		Source:             "ats",
	}, nil
}

type ApplyInput struct {
	CandidateInput
	Resume *ats.Resume
}

// ApplyResult reports every intake step.
type ApplyResult struct {
	Candidate   ats.Candidate      `json:"candidate"`
	Application domain.Application `json:"application"`
	Resume      *ats.ResumeUpload  `json:"resume,omitempty"`
	Interview   *domain.Interview  `json:"interview,omitempty"`
	Steps       []StepResult       `json:"steps"`
}

// Apply runs the whole intake server-side: create the candidate, upload the
// resume, mirror the application, associate the position and request the
// interview. Failures before the invitation abort with an error; records
// already created upstream are left in place.
func (e Engine) Apply(ctx context.Context, in ApplyInput) (ApplyResult, error) {
	if err := e.validate(in.CandidateInput); err != nil {
		return ApplyResult{}, err
	}
	var res ApplyResult
	cand, err := e.CreateCandidate(ctx, in.CandidateInput)
	if err != nil {
		return res, err
	}
	res.Candidate = cand
	res.Steps = append(res.Steps, stepOK("create_candidate"))
	candidateID := cand.ID.String()

	var resumeURL string
	if in.Resume != nil && len(in.Resume.Data) > 0 {
		up, err := e.UploadResume(ctx, candidateID, *in.Resume)
		if err != nil {
			return res, fmt.Errorf("upload resume for candidate %s: %w", candidateID, err)
		}
		res.Resume = &up
		resumeURL = up.FileURL
		res.Steps = append(res.Steps, stepOK("upload_resume"))
	} else {
		res.Steps = append(res.Steps, stepSkipped("upload_resume"))
	}

	app, err := e.SaveApplication(ctx, ApplicationInput{CandidateInput: in.CandidateInput, CandidateID: candidateID, ResumeURL: resumeURL})
	if err != nil {
		e.Metrics.IntakeStep("save_application", false)
		e.log().Warn("application mirror failed", "candidate_id", candidateID, "err", err)
		res.Steps = append(res.Steps, stepFailed("save_application", err))
	} else {
		res.Application = app
		res.Steps = append(res.Steps, stepOK("save_application"))
	}

	if in.PositionID == "" {
		res.Steps = append(res.Steps, stepSkipped("associate_position"), stepSkipped("invite"))
		e.sendConfirmation(ctx, in.CandidateInput, &res)
		return res, nil
	}
	if err := e.AssociatePosition(ctx, candidateID, in.PositionID); err != nil {
		return res, fmt.Errorf("associate candidate %s with position %s: %w", candidateID, in.PositionID, err)
	}
	res.Steps = append(res.Steps, stepOK("associate_position"))

	iv, err := e.Invite(ctx, InviteInput{PositionID: in.PositionID, Email: in.Email, Name: in.fullName(), CandidateID: candidateID})
	if err != nil {
		return res, err
	}
	res.Interview = &iv
	res.Steps = append(res.Steps, stepOK("invite"))
	if refreshed, err := e.Repo.FindApplication(ctx, nil, candidateID, ""); err == nil {
		res.Application = refreshed
	}
	e.sendConfirmation(ctx, in.CandidateInput, &res)
	return res, nil
}

func (e Engine) sendConfirmation(ctx context.Context, in CandidateInput, res *ApplyResult) {
	if !e.Config.Email.SendConfirmation || !e.Email.Configured() {
		res.Steps = append(res.Steps, stepSkipped("confirmation_email"))
		return
	}
	sendCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if _, err := e.Email.SendConfirmation(sendCtx, in.Email, in.FirstName, e.Config.Server.PublicURL); err != nil {
		e.log().Warn("confirmation email failed", "email", in.Email, "err", err)
		res.Steps = append(res.Steps, stepFailed("confirmation_email", err))
		return
	}
	res.Steps = append(res.Steps, stepOK("confirmation_email"))
}
