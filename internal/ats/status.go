package ats

// Progress is the applicant-facing summary derived from a candidate's
// custom fields.
type Progress struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	NextStep string `json:"next_step"`
}

// Custom field keys written by the funnel.
const (
	FieldInterviewStatus    = "interview_status"
	FieldProviderStatus     = "hireflix_interview_status"
	FieldInterviewID        = "hireflix_interview_id"
	FieldVideoURL           = "hireflix_video_url"
	FieldShareURL           = "hireflix_share_url"
	FieldTranscriptURL      = "hireflix_transcript_url"
	FieldInterviewScore     = "hireflix_score"
	FieldInterviewFeedback  = "hireflix_feedback"
	FieldProviderCompleted  = "hireflix_completed_at"
	FieldPositionID         = "hireflix_position_id"
	FieldPositionName       = "hireflix_position_name"
	FieldInterviewCompleted = "interview_completed_at"
	FieldInterviewPlatform  = "interview_platform"
	FieldInterviewProcessed = "interview_processed_at"
	FieldInterviewNotes     = "interview_notes"
	FieldApplicationStage   = "application_stage"
	FieldReadyForReview     = "ready_for_review"
	FieldWebhookProcessed   = "webhook_processed_at"
	FieldWebhookSource      = "webhook_source"
	FieldPositionApplied    = "position_applied"
)

// DeriveProgress applies the status rules in order: a completed interview
// wins, then a scheduled one, otherwise the application is still in intake.
func DeriveProgress(c Candidate) Progress {
	if c.Field(FieldProviderStatus) == "completed" {
		return Progress{
			Status:   "interview_completed",
			Message:  "You have completed your video interview! Our team is reviewing your responses.",
			NextStep: "wait_for_results",
		}
	}
	if c.Field(FieldApplicationStage) == "video_interview_scheduled" || c.Field(FieldInterviewStatus) == "scheduled" {
		return Progress{
			Status:   "interview_scheduled",
			Message:  "Your video interview has been scheduled. Please check your email for the interview link.",
			NextStep: "complete_interview",
		}
	}
	return Progress{
		Status:   "application_submitted",
		Message:  "Your application has been submitted and is being processed.",
		NextStep: "wait_for_contact",
	}
}

// Summary is the candidate view returned to returning applicants.
type Summary struct {
	ID                      string         `json:"id"`
	FullName                string         `json:"full_name"`
	Email                   string         `json:"email"`
	CreatedAt               string         `json:"created_at,omitempty"`
	CustomFields            map[string]any `json:"custom_fields,omitempty"`
	InterviewStatus         string         `json:"interview_status"`
	HireflixInterviewStatus string         `json:"hireflix_interview_status,omitempty"`
	ApplicationStage        string         `json:"application_stage"`
	PositionApplied         string         `json:"position_applied"`
}

func Summarize(c Candidate) Summary {
	s := Summary{
		ID:                      c.ID.String(),
		FullName:                c.FullName,
		Email:                   c.Email,
		CreatedAt:               c.CreatedAt,
		CustomFields:            c.CustomFields,
		InterviewStatus:         orDefault(c.Field(FieldInterviewStatus), "pending"),
		HireflixInterviewStatus: c.Field(FieldProviderStatus),
		ApplicationStage:        orDefault(c.Field(FieldApplicationStage), "application_submitted"),
		PositionApplied:         orDefault(c.Field(FieldPositionApplied), "Unknown Position"),
	}
	return s
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
