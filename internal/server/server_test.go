package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"internfunnel/internal/config"
	"internfunnel/internal/db"
	"internfunnel/internal/domain"
	"internfunnel/internal/engine"
	"internfunnel/internal/engine/auth"
	"internfunnel/internal/logging"
	"internfunnel/internal/metrics"
	"internfunnel/internal/migrate"
)

const (
	testUser   = "admin"
	testPass   = "s3cret"
	testSecret = "test-jwt-secret"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

type serverOption func(*Config)

func newTestServer(t *testing.T, opts ...serverOption) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	require.NoError(t, err)
	require.NoError(t, migrate.Migrate(conn))

	cfg := config.Default()
	cfg.Store.Workspace = workspace
	cfg.Auth.AdminUsername = testUser
	cfg.Auth.AdminPassword = testPass
	cfg.Auth.JWTSecret = testSecret

	reg := prometheus.NewRegistry()
	e := engine.New(conn, cfg, metrics.MustNew(reg))
	e.Logger = logging.Discard()
	e.Now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }

	scfg := Config{
		Engine:   e,
		Auth:     auth.NewService(cfg),
		Logger:   logging.Discard(),
		Gatherer: reg,
	}
	for _, opt := range opts {
		opt(&scfg)
	}
	handler, err := New(scfg)
	require.NoError(t, err)
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader = bytes.NewReader(nil)
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, data
}

type envelope struct {
	Success bool `json:"success"`
	Error   struct {
		Kind       string         `json:"kind"`
		Message    string         `json:"message"`
		HTTPStatus int            `json:"http_status"`
		Details    map[string]any `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, data []byte) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(data, &env), string(data))
	return env
}

func login(t *testing.T, srv *testServer) string {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/auth/login", map[string]any{
		"username": testUser,
		"password": testPass,
	}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var out LoginResponse
	require.NoError(t, json.Unmarshal(data, &out))
	require.True(t, out.Success)
	require.NotEmpty(t, out.Token)
	return out.Token
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestHealth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/health", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "ok", out["status"])
}

func TestDashboardRequiresAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	for _, headers := range []map[string]string{
		nil,
		{"Authorization": "Bearer not-a-token"},
		{"Authorization": "Basic YWRtaW46czNjcmV0"},
	} {
		res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/dashboard/stats", nil, headers)
		require.Equal(t, http.StatusUnauthorized, res.StatusCode, string(data))
		env := decodeError(t, data)
		assert.False(t, env.Success)
		assert.Equal(t, "unauthorized", env.Error.Kind)
		assert.Equal(t, http.StatusUnauthorized, env.Error.HTTPStatus)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/auth/login", map[string]any{
		"username": testUser,
		"password": "wrong",
	}, nil)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "Invalid credentials", decodeError(t, data).Error.Message)

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/auth/login", map[string]any{
		"username": testUser,
	}, nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	env := decodeError(t, data)
	assert.Equal(t, "validation", env.Error.Kind)
	assert.Equal(t, "Missing required field: password", env.Error.Message)
}

func TestLoginCookieAuthorizesDashboard(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/auth/login", map[string]any{
		"username": testUser,
		"password": testPass,
	}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var cookie *http.Cookie
	for _, c := range res.Cookies() {
		if c.Name == authCookie {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/dashboard/stats", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: authCookie, Value: cookie.Value})
	statsRes, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer statsRes.Body.Close()
	assert.Equal(t, http.StatusOK, statsRes.StatusCode)

	res, _ = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/auth/logout", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var cleared bool
	for _, c := range res.Cookies() {
		if c.Name == authCookie && c.MaxAge < 0 {
			cleared = true
		}
	}
	assert.True(t, cleared)
}

func TestApplicationStatusTransitions(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	token := login(t, srv)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/applications", map[string]any{
		"first_name":   "Ada",
		"last_name":    "Lovelace",
		"email":        "ada@example.com",
		"candidate_id": "101",
	}, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var created ApplicationResponse
	require.NoError(t, json.Unmarshal(data, &created))
	assert.Equal(t, domain.StatusSubmitted, created.Application.Status)
	id := created.Application.ID

	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/api/dashboard/applications/"+id, map[string]any{
		"status": string(domain.StatusAccepted),
	}, bearer(token))
	require.Equal(t, http.StatusConflict, res.StatusCode, string(data))
	env := decodeError(t, data)
	assert.Equal(t, "conflict", env.Error.Kind)
	assert.Equal(t, "status", env.Error.Details["field"])

	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/api/dashboard/applications/"+id, map[string]any{
		"status":  string(domain.StatusUnderReview),
		"message": "shortlisted",
	}, bearer(token))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var updated ApplicationResponse
	require.NoError(t, json.Unmarshal(data, &updated))
	assert.Equal(t, domain.StatusUnderReview, updated.Application.Status)
	assert.Equal(t, "shortlisted", updated.Application.Message)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/dashboard/applications?status="+string(domain.StatusUnderReview), nil, bearer(token))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var list ApplicationListResponse
	require.NoError(t, json.Unmarshal(data, &list))
	assert.Equal(t, 1, list.Count)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/dashboard/events?type="+"application.status_changed", nil, bearer(token))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var evts EventListResponse
	require.NoError(t, json.Unmarshal(data, &evts))
	require.Len(t, evts.Events, 1)
	assert.Equal(t, "admin:"+testUser, evts.Events[0].Actor)

	res, _ = doJSON(t, client, http.MethodDelete, srv.URL+"/api/dashboard/applications/"+id, nil, bearer(token))
	require.Equal(t, http.StatusOK, res.StatusCode)
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/dashboard/applications/"+id, nil, bearer(token))
	require.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "not_found", decodeError(t, data).Error.Kind)
}

func TestMissingFieldIsNamed(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/applications", map[string]any{
		"first_name": "Ada",
		"last_name":  "Lovelace",
	}, nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	env := decodeError(t, data)
	assert.Equal(t, "validation", env.Error.Kind)
	assert.Equal(t, "Missing required field: email", env.Error.Message)
	assert.Equal(t, "email", env.Error.Details["field"])
}

func TestCreateCandidateWithoutTokenIsConfigError(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/candidates", map[string]any{
		"first_name": "Ada",
		"last_name":  "Lovelace",
		"email":      "ada@example.com",
	}, nil)
	require.Equal(t, http.StatusInternalServerError, res.StatusCode)
	assert.Equal(t, "config", decodeError(t, data).Error.Kind)
}

func TestQuestionnaireSubmitAndExport(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	answers := map[string]int{}
	for i := 1; i <= 10; i++ {
		answers[strconv.Itoa(i)] = 4
	}
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/questionnaire/submit", map[string]any{
		"name":        "Ada Lovelace",
		"email":       "ada@example.com",
		"candidateId": "101",
		"answers":     answers,
		"traitScores": map[string]float64{"extraversion": 1},
	}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var sub SubmissionResponse
	require.NoError(t, json.Unmarshal(data, &sub))
	assert.True(t, sub.Success)
	assert.Equal(t, "Quiz results submitted successfully", sub.Message)
	assert.InDelta(t, 4.0, sub.Result.TraitScores.Extraversion, 0.001)
	sinks := map[string]engine.SinkResult{}
	for _, s := range sub.Sinks {
		sinks[s.Sink] = s
	}
	assert.True(t, sinks[engine.SinkDocumentStore].OK)
	assert.True(t, sinks[engine.SinkSpreadsheet].Skipped)
	assert.True(t, sinks[engine.SinkATS].Skipped)

	token := login(t, srv)
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/dashboard/quiz-results?email=ada@example.com", nil, bearer(token))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var results ResultListResponse
	require.NoError(t, json.Unmarshal(data, &results))
	assert.Equal(t, 1, results.Count)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/dashboard/survey-results", nil, bearer(token))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.NoError(t, json.Unmarshal(data, &results))
	assert.Equal(t, 0, results.Count)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/dashboard/quiz-results/export", nil, bearer(token))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, xlsxContentType, res.Header.Get("Content-Type"))
	assert.Contains(t, res.Header.Get("Content-Disposition"), "quiz-results-2025-03-01.xlsx")
	assert.Equal(t, []byte("PK"), data[:2])

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/dashboard/stats", nil, bearer(token))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var stats StatsResponse
	require.NoError(t, json.Unmarshal(data, &stats))
	assert.Equal(t, 1, stats.TotalQuizResults)
	assert.Equal(t, 0, stats.TotalSurveyResults)
}

func TestQuestionnaireValidation(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/survey/submit", map[string]any{
		"email": "ada@example.com",
	}, nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "Missing required field: answers", decodeError(t, data).Error.Message)
}

func TestCompletionSignalRelay(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	pollURL := srv.URL + "/api/interview-complete-signal?candidate_id=101"

	res, data := doJSON(t, client, http.MethodGet, pollURL, nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var st engine.SignalStatus
	require.NoError(t, json.Unmarshal(data, &st))
	assert.False(t, st.Completed)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/interview-complete-signal", map[string]any{
		"candidate_id": "101",
		"interview_id": "iv-1",
	}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodGet, pollURL, nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.NoError(t, json.Unmarshal(data, &st))
	assert.True(t, st.Completed)
	assert.Equal(t, "101", st.CandidateID)

	res, data = doJSON(t, client, http.MethodGet, pollURL, nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.NoError(t, json.Unmarshal(data, &st))
	assert.False(t, st.Completed)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/interview-complete-signal", nil, nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "Missing required field: candidate_id", decodeError(t, data).Error.Message)
}

func TestInterviewWebhookRoutes(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/api/webhooks/hireflix", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var caps map[string]any
	require.NoError(t, json.Unmarshal(data, &caps))
	assert.Equal(t, "active", caps["status"])
	assert.Contains(t, caps["events"], "interview.finish")

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/webhooks/interview", map[string]any{
		"event":     "interview.started",
		"interview": map[string]any{"id": "iv-1"},
	}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var ack engine.WebhookAck
	require.NoError(t, json.Unmarshal(data, &ack))
	assert.True(t, ack.Success)
	assert.Equal(t, "Event interview.started logged successfully", ack.Message)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/webhooks/interview", "{not json", nil)
	require.Equal(t, http.StatusInternalServerError, res.StatusCode)
	env := decodeError(t, data)
	assert.False(t, env.Success)
	assert.Equal(t, "Failed to process webhook", env.Error.Message)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/webhooks/interview", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://hooks.example.com")
	optRes, err := client.Do(req)
	require.NoError(t, err)
	optRes.Body.Close()
	assert.Equal(t, http.StatusOK, optRes.StatusCode)
	assert.Equal(t, "*", optRes.Header.Get("Access-Control-Allow-Origin"))

	res, _ = doJSON(t, client, http.MethodPost, srv.URL+"/api/webhooks/unknown", map[string]any{}, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestATSWebhookIsLogged(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/webhooks/manatal", map[string]any{
		"event_type":   "candidate.updated",
		"candidate_id": 101,
	}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	evts, err := srv.Engine.ListEvents(context.Background(), 10, "ats.event")
	require.NoError(t, err)
	assert.Len(t, evts, 1)
}

func TestCandidateStatusFromLocalRecord(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/applications", map[string]any{
		"first_name":   "Ada",
		"last_name":    "Lovelace",
		"email":        "ada@example.com",
		"candidate_id": "101",
	}, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/candidates/101/status", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var out StatusResponse
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, string(domain.StatusSubmitted), out.Status.Status)
	assert.Equal(t, "local", out.Status.Source)

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/api/candidates/999/status", nil, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestResumeUploadValidation(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("note", "no file"))
	require.NoError(t, mw.Close())
	res, err := srv.Client().Post(srv.URL+"/api/candidates/101/resume", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer res.Body.Close()
	data, _ := io.ReadAll(res.Body)
	require.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))
	assert.Equal(t, "validation", decodeError(t, data).Error.Kind)
}

func TestServeResume(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	token := login(t, srv)

	dir := db.ResumeDir(srv.Engine.Config.Store.Workspace)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "101_1.pdf"), []byte("%PDF-1.4"), 0o644))

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/dashboard/resumes/101_1.pdf", nil, bearer(token))
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "%PDF-1.4", string(data))

	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/dashboard/resumes/missing.pdf", nil, bearer(token))
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/dashboard/resumes/101_1.pdf", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestRateLimit(t *testing.T) {
	srv, cleanup := newTestServer(t, func(c *Config) {
		c.RateLimit = RateLimitConfig{RequestsPerMinute: 1, Burst: 2}
	})
	defer cleanup()

	for i := 0; i < 2; i++ {
		res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/health", nil, nil)
		require.Equal(t, http.StatusOK, res.StatusCode)
	}
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/health", nil, nil)
	require.Equal(t, http.StatusTooManyRequests, res.StatusCode)
	assert.Equal(t, "rate_limited", decodeError(t, data).Error.Kind)
	assert.NotEmpty(t, res.Header.Get("Retry-After"))

	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestCORSAllowedOrigin(t *testing.T) {
	srv, cleanup := newTestServer(t, func(c *Config) {
		c.CORSOrigins = []string{"https://apply.example.com"}
	})
	defer cleanup()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/health", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://apply.example.com")
	res, err := srv.Client().Do(req)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, "https://apply.example.com", res.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", res.Header.Get("Access-Control-Allow-Credentials"))

	req.Header.Set("Origin", "https://evil.example.com")
	res, err = srv.Client().Do(req)
	require.NoError(t, err)
	res.Body.Close()
	assert.Empty(t, res.Header.Get("Access-Control-Allow-Origin"))
}

// withShippedDefaults applies the edge settings of the default funnel.yml.
func withShippedDefaults(c *Config) {
	defaults := config.Default()
	c.RateLimit = RateLimitFromConfig(defaults)
	c.CORSOrigins = defaults.Server.CORSOrigins
}

func TestWebhookNotRateLimitedUnderDefaults(t *testing.T) {
	srv, cleanup := newTestServer(t, withShippedDefaults)
	defer cleanup()

	limits := RateLimitFromConfig(config.Default())
	require.Positive(t, limits.RequestsPerMinute)
	deliveries := limits.Burst + 10
	for i := 0; i < deliveries; i++ {
		res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/webhooks/hireflix", `{"event":"interview.started"}`, nil)
		require.Equal(t, http.StatusOK, res.StatusCode, "delivery %d: %s", i, data)
	}

	// the rest of the API is still limited
	var last int
	for i := 0; i <= limits.Burst; i++ {
		res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/health", nil, nil)
		last = res.StatusCode
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}

func TestCORSDefaultOriginsAllowAnyOrigin(t *testing.T) {
	srv, cleanup := newTestServer(t, withShippedDefaults)
	defer cleanup()
	require.Contains(t, config.Default().Server.CORSOrigins, "*")

	for _, tc := range []struct {
		method, path string
	}{
		{http.MethodOptions, "/api/webhooks/hireflix"},
		{http.MethodGet, "/api/interview-complete-signal?candidate_id=101"},
		{http.MethodOptions, "/api/apply"},
	} {
		req, err := http.NewRequest(tc.method, srv.URL+tc.path, nil)
		require.NoError(t, err)
		req.Header.Set("Origin", "https://app.example.com")
		res, err := srv.Client().Do(req)
		require.NoError(t, err)
		res.Body.Close()
		assert.Equal(t, http.StatusOK, res.StatusCode, tc.path)
		assert.Equal(t, "*", res.Header.Get("Access-Control-Allow-Origin"), tc.path)
		assert.Empty(t, res.Header.Get("Access-Control-Allow-Credentials"), tc.path)
	}
}

func TestCORSWildcardKeepsCredentialsForListedOrigins(t *testing.T) {
	srv, cleanup := newTestServer(t, func(c *Config) {
		c.CORSOrigins = []string{"*", "https://apply.example.com"}
	})
	defer cleanup()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/health", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://apply.example.com")
	res, err := srv.Client().Do(req)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, "https://apply.example.com", res.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", res.Header.Get("Access-Control-Allow-Credentials"))
}

func TestRateLimiterSharesBucketAcrossConcurrentFirstRequests(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{RequestsPerMinute: 1, Burst: 3})
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.allow("ip:10.0.0.1") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 3, allowed)
}

func TestOpenAPIMarksDashboardSecured(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/openapi.json", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var oas struct {
		Paths map[string]map[string]struct {
			Security []map[string][]string `json:"security"`
		} `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(data, &oas))
	assert.NotEmpty(t, oas.Paths["/api/dashboard/stats"]["get"].Security)
	assert.Empty(t, oas.Paths["/api/positions"]["get"].Security)
}

func TestWebhookDispatcherDeliversFilteredEvents(t *testing.T) {
	var mu sync.Mutex
	var got []webhookEvent
	var secrets []string
	sub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var evt webhookEvent
		_ = json.NewDecoder(r.Body).Decode(&evt)
		mu.Lock()
		got = append(got, evt)
		secrets = append(secrets, r.Header.Get("X-Funnel-Secret"))
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer sub.Close()

	srv, cleanup := newTestServer(t)
	defer cleanup()
	e := srv.Engine
	e.Config.Webhooks = []config.WebhookConfig{{
		URL:    sub.URL,
		Events: []string{"application.created"},
		Secret: "shh",
	}}
	ctx := context.Background()
	d := newWebhookDispatcher(e, logging.Discard())
	d.dispatchAll(ctx)

	_, err := e.SaveApplication(ctx, engine.ApplicationInput{
		CandidateInput: engine.CandidateInput{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"},
		CandidateID:    "101",
	})
	require.NoError(t, err)
	_, err = e.RecordSignal(ctx, "101", "iv-1")
	require.NoError(t, err)
	d.dispatchAll(ctx)
	d.dispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, "application.created", got[0].Type)
	assert.Equal(t, "shh", secrets[0])
}
