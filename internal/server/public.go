package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"internfunnel/internal/apperr"
	"internfunnel/internal/ats"
	"internfunnel/internal/domain"
	"internfunnel/internal/engine"
	"internfunnel/internal/webhook"
)

const (
	maxWebhookBody = 1 << 20
	// multipart overhead on top of the resume itself
	maxFormOverhead = 1 << 20
)

type bodyOutput[T any] struct {
	Body T
}

func reply[T any](v T) *bodyOutput[T] {
	return &bodyOutput[T]{Body: v}
}

type idPath struct {
	ID string `path:"id"`
}

func registerWebhooks(r chi.Router, basePath string, h handlers) {
	p := path.Join("/", basePath, "webhooks/{provider}")
	r.Get(p, h.webhookInfo)
	r.Post(p, h.receiveWebhook)
	r.Options(p, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func webhookProvider(name string) (string, bool) {
	switch strings.ToLower(name) {
	case "interview", "hireflix":
		return engine.ProviderInterview, true
	case "ats", "manatal":
		return engine.ProviderATS, true
	}
	return "", false
}

func (h handlers) publicURL(r *http.Request) string {
	if h.engine.Config != nil && h.engine.Config.Server.PublicURL != "" {
		return strings.TrimSuffix(h.engine.Config.Server.PublicURL, "/")
	}
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func (h handlers) webhookInfo(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")
	provider, ok := webhookProvider(name)
	if !ok {
		respondStatusError(w, apperr.NotFound("Unknown webhook provider: %s", name))
		return
	}
	url := h.publicURL(r) + r.URL.Path
	now := h.now()
	if provider == engine.ProviderATS {
		writeJSON(w, http.StatusOK, webhook.ATSCapabilities(url, now))
		return
	}
	writeJSON(w, http.StatusOK, webhook.InterviewCapabilities(url, now))
}

func (h handlers) receiveWebhook(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")
	provider, ok := webhookProvider(name)
	if !ok {
		respondStatusError(w, apperr.NotFound("Unknown webhook provider: %s", name))
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondStatusError(w, apperr.Internal(err))
		return
	}
	var ack engine.WebhookAck
	if provider == engine.ProviderATS {
		ack, err = h.engine.HandleATSWebhook(r.Context(), body)
	} else {
		ack, err = h.engine.HandleInterviewWebhook(r.Context(), body)
	}
	if err != nil {
		h.logger.Error("webhook rejected", "provider", provider, "error", err)
		respondStatusError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ack)
}

func registerIntake(api huma.API, h handlers) {
	e := h.engine
	huma.Register(api, huma.Operation{
		OperationID: "list-positions",
		Method:      http.MethodGet,
		Path:        "/positions",
		Summary:     "List open positions",
		Tags:        []string{"intake"},
	}, func(ctx context.Context, _ *struct{}) (*bodyOutput[PositionsResponse], error) {
		items, err := e.ListPositions(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Position{}
		}
		return reply(PositionsResponse{Success: true, Positions: items}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "create-candidate",
		Method:      http.MethodPost,
		Path:        "/candidates",
		Summary:     "Create a candidate in the ATS",
		Tags:        []string{"intake"},
	}, func(ctx context.Context, input *struct {
		Body CandidateRequest
	}) (*bodyOutput[CandidateResponse], error) {
		cand, err := e.CreateCandidate(ctx, input.Body.input())
		if err != nil {
			return nil, handleError(err)
		}
		return reply(CandidateResponse{Success: true, Candidate: cand}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "check-candidate",
		Method:      http.MethodPost,
		Path:        "/candidates/check",
		Summary:     "Look up a returning applicant",
		Tags:        []string{"intake"},
	}, func(ctx context.Context, input *struct {
		Body CheckCandidateRequest
	}) (*bodyOutput[CandidateCheckResponse], error) {
		check, err := e.CheckCandidate(ctx, strings.TrimSpace(input.Body.Email))
		if err != nil {
			return nil, handleError(err)
		}
		return reply(CandidateCheckResponse{Success: true, CandidateCheck: check}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "candidate-status",
		Method:      http.MethodGet,
		Path:        "/candidates/{id}/status",
		Summary:     "Get the journey status of a candidate",
		Tags:        []string{"intake"},
	}, func(ctx context.Context, input *idPath) (*bodyOutput[StatusResponse], error) {
		view, err := e.CandidateStatus(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(StatusResponse{Success: true, Status: view}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "associate-position",
		Method:      http.MethodPost,
		Path:        "/candidates/{id}/positions",
		Summary:     "Associate a candidate with a position",
		Tags:        []string{"intake"},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body AssociatePositionRequest
	}) (*bodyOutput[SuccessResponse], error) {
		if err := e.AssociatePosition(ctx, input.ID, input.Body.PositionID); err != nil {
			return nil, handleError(err)
		}
		return reply(SuccessResponse{Success: true, Message: "Candidate associated with position"}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "save-application",
		Method:        http.MethodPost,
		Path:          "/applications",
		Summary:       "Save an application record",
		Tags:          []string{"intake"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body ApplicationRequest
	}) (*bodyOutput[ApplicationResponse], error) {
		a, err := e.SaveApplication(ctx, input.Body.input())
		if err != nil {
			return nil, handleError(err)
		}
		return reply(ApplicationResponse{Success: true, Application: a}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "invite-interview",
		Method:      http.MethodPost,
		Path:        "/interviews",
		Summary:     "Request a video interview invitation",
		Tags:        []string{"interviews"},
	}, func(ctx context.Context, input *struct {
		Body InviteRequest
	}) (*bodyOutput[InterviewResponse], error) {
		iv, err := e.Invite(ctx, engine.InviteInput{
			PositionID:  input.Body.PositionID,
			Email:       input.Body.Email,
			Name:        input.Body.Name,
			CandidateID: input.Body.CandidateID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(InterviewResponse{Success: true, Interview: iv, Message: iv.Message}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "interview-results",
		Method:      http.MethodPost,
		Path:        "/interviews/results",
		Summary:     "Sync interview results into the ATS",
		Tags:        []string{"interviews"},
	}, func(ctx context.Context, input *struct {
		Body InterviewResultsRequest
	}) (*bodyOutput[InterviewResultsResponse], error) {
		res, err := e.SyncInterviewResults(ctx, engine.ResultsInput{
			InterviewID: input.Body.InterviewID,
			CandidateID: input.Body.CandidateID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(InterviewResultsResponse{Success: true, InterviewResults: res}), nil
	})
}

// registerIntakeUploads wires the multipart endpoints, which huma does not
// model.
func registerIntakeUploads(r chi.Router, basePath string, h handlers) {
	r.Post(path.Join("/", basePath, "candidates/{id}/resume"), h.uploadResume)
	r.Post(path.Join("/", basePath, "apply"), h.apply)
}

func (h handlers) uploadResume(w http.ResponseWriter, r *http.Request) {
	if err := parseMultipart(w, r); err != nil {
		respondStatusError(w, err)
		return
	}
	resume, err := formResume(r)
	if err != nil {
		respondStatusError(w, err)
		return
	}
	var in ats.Resume
	if resume != nil {
		in = *resume
	}
	up, err := h.engine.UploadResume(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		respondStatusError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ResumeResponse{Success: true, Resume: up})
}

// apply accepts the application form as multipart (with an optional
// resume part) or as a JSON candidate body.
func (h handlers) apply(w http.ResponseWriter, r *http.Request) {
	var in engine.ApplyInput
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var req CandidateRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, maxFormOverhead)).Decode(&req); err != nil {
			respondStatusError(w, apperr.Validation("body", "Invalid JSON body"))
			return
		}
		in.CandidateInput = req.input()
	} else {
		if err := parseMultipart(w, r); err != nil {
			respondStatusError(w, err)
			return
		}
		in.CandidateInput = formCandidate(r)
		resume, err := formResume(r)
		if err != nil {
			respondStatusError(w, err)
			return
		}
		in.Resume = resume
	}
	res, err := h.engine.Apply(r.Context(), in)
	if err != nil {
		respondStatusError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ApplyResponse{Success: true, ApplyResult: res})
}

func parseMultipart(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, engine.MaxResumeBytes+maxFormOverhead)
	if err := r.ParseMultipartForm(engine.MaxResumeBytes + maxFormOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.Validation("resume", "File too large. Maximum size is 10MB")
		}
		return apperr.Validation("body", "Invalid multipart form")
	}
	return nil
}

// formResume returns the "resume" part, or nil when none was sent.
func formResume(r *http.Request) (*ats.Resume, error) {
	f, hdr, err := r.FormFile("resume")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Validation("resume", "Invalid resume upload")
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, engine.MaxResumeBytes+1))
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &ats.Resume{
		FileName:    hdr.Filename,
		ContentType: hdr.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func formCandidate(r *http.Request) engine.CandidateInput {
	v := func(key string) string { return strings.TrimSpace(r.FormValue(key)) }
	consent, _ := strconv.ParseBool(v("consent"))
	return engine.CandidateInput{
		FirstName:       v("first_name"),
		LastName:        v("last_name"),
		Email:           v("email"),
		Phone:           v("phone"),
		Location:        v("location"),
		PassportCountry: v("passport_country"),
		PositionID:      v("position_id"),
		PositionTitle:   v("position_title"),
		Notes:           v("notes"),
		Consent:         consent || v("consent") == "on",
	}
}

func registerQuestionnaires(api huma.API, h handlers) {
	for _, q := range []struct {
		kind    domain.QuestionnaireKind
		id      string
		path    string
		summary string
		message string
	}{
		{domain.KindQuiz, "submit-quiz", "/questionnaire/submit", "Submit the personality quiz", "Quiz results submitted successfully"},
		{domain.KindSurvey, "submit-survey", "/survey/submit", "Submit the personality survey", "Survey results submitted successfully"},
	} {
		huma.Register(api, huma.Operation{
			OperationID: q.id,
			Method:      http.MethodPost,
			Path:        q.path,
			Summary:     q.summary,
			Tags:        []string{"questionnaires"},
		}, func(ctx context.Context, input *struct {
			Body QuestionnaireRequest
		}) (*bodyOutput[SubmissionResponse], error) {
			sub, err := h.engine.SubmitQuestionnaire(ctx, input.Body.input(q.kind))
			if err != nil {
				return nil, handleError(err)
			}
			return reply(SubmissionResponse{Success: true, Message: q.message, Submission: sub}), nil
		})
	}
}

func registerSignals(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "record-signal",
		Method:      http.MethodPost,
		Path:        "/interview-complete-signal",
		Summary:     "Record an interview completion signal",
		Tags:        []string{"signals"},
	}, func(ctx context.Context, input *struct {
		Body SignalRequest
	}) (*bodyOutput[engine.SignalStatus], error) {
		st, err := h.engine.RecordSignal(ctx, input.Body.CandidateID, input.Body.InterviewID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(st), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "poll-signal",
		Method:      http.MethodGet,
		Path:        "/interview-complete-signal",
		Summary:     "Poll for an interview completion signal",
		Tags:        []string{"signals"},
	}, func(ctx context.Context, input *struct {
		CandidateID string `query:"candidate_id"`
	}) (*bodyOutput[engine.SignalStatus], error) {
		st, err := h.engine.PollSignal(ctx, input.CandidateID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(st), nil
	})
}
