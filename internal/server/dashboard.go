package server

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"internfunnel/internal/apperr"
	"internfunnel/internal/db"
	"internfunnel/internal/domain"
	"internfunnel/internal/engine"
	"internfunnel/internal/repo"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var dashboardTags = []string{"dashboard"}

type resultQuery struct {
	Email       string `query:"email"`
	CandidateID string `query:"candidate_id"`
	Limit       int    `query:"limit" minimum:"0" maximum:"500"`
}

func registerDashboard(api huma.API, h handlers) {
	e := h.engine
	huma.Register(api, huma.Operation{
		OperationID: "dashboard-stats",
		Method:      http.MethodGet,
		Path:        "/dashboard/stats",
		Summary:     "Funnel summary counts",
		Tags:        dashboardTags,
	}, func(ctx context.Context, _ *struct{}) (*bodyOutput[StatsResponse], error) {
		stats, err := e.Stats(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(StatsResponse{Success: true, Stats: stats}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-applications",
		Method:      http.MethodGet,
		Path:        "/dashboard/applications",
		Summary:     "List applications",
		Tags:        dashboardTags,
	}, func(ctx context.Context, input *struct {
		Status      string `query:"status"`
		Email       string `query:"email"`
		CandidateID string `query:"candidate_id"`
		Limit       int    `query:"limit" minimum:"0" maximum:"500"`
		Offset      int    `query:"offset" minimum:"0"`
	}) (*bodyOutput[ApplicationListResponse], error) {
		items, err := e.ListApplications(ctx, repo.ApplicationFilters{
			Status:      input.Status,
			Email:       input.Email,
			CandidateID: input.CandidateID,
			Limit:       input.Limit,
			Offset:      input.Offset,
		})
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Application{}
		}
		return reply(ApplicationListResponse{Success: true, Applications: items, Count: len(items)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-application",
		Method:      http.MethodGet,
		Path:        "/dashboard/applications/{id}",
		Summary:     "Get an application",
		Tags:        dashboardTags,
	}, func(ctx context.Context, input *idPath) (*bodyOutput[ApplicationResponse], error) {
		a, err := e.GetApplication(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(ApplicationResponse{Success: true, Application: a}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-application",
		Method:      http.MethodPut,
		Path:        "/dashboard/applications/{id}",
		Summary:     "Update an application",
		Description: "Status changes must follow the journey transitions; an illegal transition is a 409.",
		Tags:        dashboardTags,
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body UpdateApplicationRequest
	}) (*bodyOutput[ApplicationResponse], error) {
		a, err := e.UpdateApplication(ctx, input.ID, input.Body.patch(), actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return reply(ApplicationResponse{Success: true, Application: a}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-application",
		Method:      http.MethodDelete,
		Path:        "/dashboard/applications/{id}",
		Summary:     "Delete an application",
		Tags:        dashboardTags,
	}, func(ctx context.Context, input *idPath) (*bodyOutput[SuccessResponse], error) {
		if err := e.DeleteApplication(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		h.logger.Info("application deleted", "application_id", input.ID, "actor", actorFromContext(ctx))
		return reply(SuccessResponse{Success: true, Message: "Application deleted"}), nil
	})

	for _, kind := range []domain.QuestionnaireKind{domain.KindQuiz, domain.KindSurvey} {
		base := "/dashboard/" + string(kind) + "-results"
		huma.Register(api, huma.Operation{
			OperationID: "list-" + string(kind) + "-results",
			Method:      http.MethodGet,
			Path:        base,
			Summary:     fmt.Sprintf("List %s results", kind),
			Tags:        dashboardTags,
		}, func(ctx context.Context, input *resultQuery) (*bodyOutput[ResultListResponse], error) {
			items, err := e.ListResults(ctx, repo.ResultFilters{
				Kind:        kind,
				Email:       input.Email,
				CandidateID: input.CandidateID,
				Limit:       input.Limit,
			})
			if err != nil {
				return nil, handleError(err)
			}
			if items == nil {
				items = []domain.QuestionnaireResult{}
			}
			return reply(ResultListResponse{Success: true, Results: items, Count: len(items)}), nil
		})

		huma.Register(api, huma.Operation{
			OperationID: "delete-" + string(kind) + "-result",
			Method:      http.MethodDelete,
			Path:        base + "/{id}",
			Summary:     fmt.Sprintf("Delete a %s result", kind),
			Tags:        dashboardTags,
		}, func(ctx context.Context, input *idPath) (*bodyOutput[SuccessResponse], error) {
			if err := e.DeleteResult(ctx, input.ID); err != nil {
				return nil, handleError(err)
			}
			return reply(SuccessResponse{Success: true, Message: "Result deleted"}), nil
		})
	}

	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/dashboard/users",
		Summary:     "List candidate portal users",
		Tags:        dashboardTags,
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" minimum:"0" maximum:"500"`
	}) (*bodyOutput[UserListResponse], error) {
		users, err := e.ListUsers(ctx, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		if users == nil {
			users = []domain.User{}
		}
		return reply(UserListResponse{Success: true, Users: users, Count: len(users)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-user",
		Method:      http.MethodDelete,
		Path:        "/dashboard/users/{id}",
		Summary:     "Delete a candidate portal user",
		Tags:        dashboardTags,
	}, func(ctx context.Context, input *idPath) (*bodyOutput[SuccessResponse], error) {
		if err := e.DeleteUser(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return reply(SuccessResponse{Success: true, Message: "User deleted"}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-candidates",
		Method:      http.MethodGet,
		Path:        "/dashboard/candidates",
		Summary:     "List ATS candidates",
		Tags:        dashboardTags,
	}, func(ctx context.Context, input *struct {
		Page     int `query:"page" minimum:"0"`
		PageSize int `query:"page_size" minimum:"0" maximum:"100"`
	}) (*bodyOutput[CandidatePageResponse], error) {
		page, err := e.ListCandidates(ctx, input.Page, input.PageSize)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(CandidatePageResponse{Success: true, Page: page}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-candidate",
		Method:      http.MethodGet,
		Path:        "/dashboard/candidates/{id}",
		Summary:     "Get an ATS candidate",
		Tags:        dashboardTags,
	}, func(ctx context.Context, input *idPath) (*bodyOutput[CandidateResponse], error) {
		cand, err := e.GetCandidate(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(CandidateResponse{Success: true, Candidate: cand}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-candidate",
		Method:      http.MethodDelete,
		Path:        "/dashboard/candidates/{id}",
		Summary:     "Delete an ATS candidate",
		Tags:        dashboardTags,
	}, func(ctx context.Context, input *idPath) (*bodyOutput[SuccessResponse], error) {
		if err := e.DeleteCandidate(ctx, input.ID, actorFromContext(ctx)); err != nil {
			return nil, handleError(err)
		}
		return reply(SuccessResponse{Success: true, Message: "Candidate deleted"}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "send-email",
		Method:      http.MethodPost,
		Path:        "/dashboard/emails",
		Summary:     "Send a transactional email",
		Tags:        dashboardTags,
	}, func(ctx context.Context, input *struct {
		Body SendEmailRequest
	}) (*bodyOutput[EmailResponse], error) {
		sent, err := e.SendEmail(ctx, input.Body.message())
		if err != nil {
			return nil, handleError(err)
		}
		return reply(EmailResponse{Success: true, ID: sent.ID}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "connectivity",
		Method:      http.MethodGet,
		Path:        "/dashboard/connectivity",
		Summary:     "Probe the configured upstream services",
		Tags:        dashboardTags,
	}, func(ctx context.Context, _ *struct{}) (*bodyOutput[ConnectivityResponse], error) {
		probes := e.Connectivity(ctx)
		return reply(ConnectivityResponse{Success: true, Healthy: engine.Healthy(probes), Services: probes}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/dashboard/events",
		Summary:     "Recent funnel events",
		Tags:        dashboardTags,
	}, func(ctx context.Context, input *struct {
		Limit int    `query:"limit" minimum:"0" maximum:"500"`
		Type  string `query:"type"`
	}) (*bodyOutput[EventListResponse], error) {
		items, err := e.ListEvents(ctx, input.Limit, input.Type)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Event{}
		}
		return reply(EventListResponse{Success: true, Events: items}), nil
	})
}

// registerDashboardFiles wires the binary downloads. They sit under the
// dashboard prefix, so the auth middleware applies.
func registerDashboardFiles(r chi.Router, basePath string, h handlers) {
	prefix := dashboardPrefix(basePath)
	for _, kind := range []domain.QuestionnaireKind{domain.KindQuiz, domain.KindSurvey} {
		r.Get(prefix+"/"+string(kind)+"-results/export", h.exportResults(kind))
	}
	r.Get(prefix+"/resumes/{file}", h.serveResume)
}

func (h handlers) exportResults(kind domain.QuestionnaireKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		if err := h.engine.ExportResults(r.Context(), &buf, kind); err != nil {
			respondStatusError(w, err)
			return
		}
		name := fmt.Sprintf("%s-results-%s.xlsx", kind, h.now().UTC().Format("2006-01-02"))
		w.Header().Set("Content-Type", xlsxContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
	}
}

func (h handlers) serveResume(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "file")
	if name == "" || name != path.Base(name) || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) {
		respondStatusError(w, apperr.Validation("file", "Invalid file name"))
		return
	}
	workspace := "."
	if h.engine.Config != nil && h.engine.Config.Store.Workspace != "" {
		workspace = h.engine.Config.Store.Workspace
	}
	full := filepath.Join(db.ResumeDir(workspace), name)
	f, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			respondStatusError(w, apperr.NotFound("Resume not found: %s", name))
			return
		}
		respondStatusError(w, apperr.Internal(err))
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		respondStatusError(w, apperr.NotFound("Resume not found: %s", name))
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", name))
	http.ServeContent(w, r, name, info.ModTime(), f)
}
