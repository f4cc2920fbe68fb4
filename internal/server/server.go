package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"internfunnel/internal/apperr"
	"internfunnel/internal/domain"
	"internfunnel/internal/engine"
	"internfunnel/internal/engine/auth"
	"internfunnel/internal/repo"
)

const defaultBasePath = "/api"

// Config for the HTTP API handler.
type Config struct {
	Engine      engine.Engine
	BasePath    string
	Auth        auth.Service
	Logger      *slog.Logger
	Gatherer    prometheus.Gatherer
	CORSOrigins []string
	RateLimit   RateLimitConfig
	// SecureCookie marks the auth cookie Secure; set outside development.
	SecureCookie bool
}

type apiErrorBody struct {
	Kind       string         `json:"kind" example:"validation"`
	Message    string         `json:"message" example:"Missing required field: email"`
	HTTPStatus int            `json:"http_status" example:"400"`
	Details    map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"field\":\"email\"}"`
}

// apiError models the error envelope shared by every route.
type apiError struct {
	status  int
	Success bool         `json:"success"`
	Body    apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the funnel API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = defaultBasePath
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	basePath = strings.TrimSuffix(basePath, "/")
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(newCORSMiddleware(cfg.CORSOrigins))
	router.Use(newRateLimitMiddleware(cfg.RateLimit, basePath, logger))
	router.Use(newAuthMiddleware(basePath, cfg.Auth))

	hcfg := huma.DefaultConfig("Global Internship Initiative API", "1.0.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	h := handlers{engine: cfg.Engine, auth: cfg.Auth, logger: logger, secureCookie: cfg.SecureCookie}
	registerDocs(router, basePath)
	registerMetrics(router, cfg.Gatherer)
	registerHealth(group, cfg.Engine)
	registerWebhooks(router, basePath, h)
	registerIntake(group, h)
	registerIntakeUploads(router, basePath, h)
	registerQuestionnaires(group, h)
	registerSignals(group, h)
	registerAuth(group, h)
	registerDashboard(group, h)
	registerDashboardFiles(router, basePath, h)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

type handlers struct {
	engine       engine.Engine
	auth         auth.Service
	logger       *slog.Logger
	secureCookie bool
}

func (h handlers) now() time.Time {
	if h.engine.Now != nil {
		return h.engine.Now()
	}
	return time.Now()
}

func newAPIError(status int, kind, message string, details map[string]any) huma.StatusError {
	if kind == "" {
		kind = defaultKindForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Kind:       kind,
			Message:    message,
			HTTPStatus: status,
			Details:    details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	if ae, ok := apperr.As(err); ok {
		details := map[string]any{}
		if ae.Field != "" {
			details["field"] = ae.Field
		}
		if ae.Kind == apperr.KindUpstream {
			details["service"] = ae.Service
			if ae.Status > 0 {
				details["upstream_status"] = ae.Status
			}
		}
		if len(details) == 0 {
			details = nil
		}
		return newAPIError(ae.HTTPStatus(), string(ae.Kind), ae.Message, details)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, string(apperr.KindNotFound), "Not found", nil)
	}
	if errors.Is(err, domain.ErrInvalidTransition) {
		return newAPIError(http.StatusConflict, string(apperr.KindConflict), err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, string(apperr.KindInternal), "Internal server error", map[string]any{"error": err.Error()})
}

func defaultKindForStatus(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity, http.StatusRequestEntityTooLarge:
		return string(apperr.KindValidation)
	case http.StatusUnauthorized, http.StatusForbidden:
		return string(apperr.KindUnauthorized)
	case http.StatusNotFound:
		return string(apperr.KindNotFound)
	case http.StatusConflict:
		return string(apperr.KindConflict)
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusBadGateway, http.StatusGatewayTimeout:
		return string(apperr.KindUpstream)
	default:
		return string(apperr.KindInternal)
	}
}

// respondStatusError writes the envelope from plain chi handlers.
func respondStatusError(w http.ResponseWriter, err error) {
	se := handleError(err)
	writeJSON(w, se.GetStatus(), se)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func registerDocs(r chi.Router, basePath string) {
	r.Get(path.Join("/", basePath, "docs"), func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerMetrics(r chi.Router, g prometheus.Gatherer) {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join("/", basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

// applyAuthSecurity marks the dashboard operations as requiring a token.
func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["cookieAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "cookie",
		Name: authCookie,
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"cookieAuth": {}},
	}
	prefix := dashboardPrefix(basePath)
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if strings.HasPrefix(route, prefix) {
				op.Security = security
				continue
			}
			op.Security = []map[string][]string{}
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Global Internship Initiative API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        window.ui = SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui',
        });
      };
    </script>
  </body>
</html>`, specURL)
}

type healthOutput struct {
	Body struct {
		Status      string `json:"status" example:"ok"`
		Time        string `json:"time" format:"date-time"`
		Environment string `json:"environment,omitempty"`
	}
}

func registerHealth(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Tags:        []string{"system"},
	}, func(ctx context.Context, _ *struct{}) (*healthOutput, error) {
		out := &healthOutput{}
		out.Body.Status = "ok"
		now := time.Now
		if e.Now != nil {
			now = e.Now
		}
		out.Body.Time = now().UTC().Format(time.RFC3339)
		if e.Config != nil {
			out.Body.Environment = e.Config.Server.Environment
		}
		return out, nil
	})
}
