package upstream

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"internfunnel/internal/apperr"
)

type recordingObserver struct {
	calls []bool
}

func (r *recordingObserver) ObserveUpstream(_ string, ok bool, _ time.Duration) {
	r.calls = append(r.calls, ok)
}

func TestDoRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/candidates/7/", r.URL.Path)
		assert.Equal(t, "yes", r.URL.Query().Get("expand"))
		assert.Equal(t, "Token abc", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"custom_fields":{"a":1}}`, string(body))
		w.Write([]byte(`{"id":7}`))
	}))
	defer srv.Close()

	obs := &recordingObserver{}
	c := New("ats", srv.URL+"/", time.Second)
	c.Header.Set("Authorization", "Token abc")
	c.Observer = obs

	var out struct {
		ID int `json:"id"`
	}
	err := c.Do(context.Background(), http.MethodPatch, "/candidates/7/", url.Values{"expand": {"yes"}},
		map[string]any{"custom_fields": map[string]any{"a": 1}}, &out)
	require.NoError(t, err)
	assert.Equal(t, 7, out.ID)
	assert.Equal(t, []bool{true}, obs.calls)
}

func TestDoNon2xxIsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"detail":"already exists"}`))
	}))
	defer srv.Close()

	err := New("interview", srv.URL, time.Second).Do(context.Background(), http.MethodPost, "/", nil, map[string]string{}, nil)
	require.Error(t, err)
	assert.Equal(t, apperr.KindUpstream, apperr.KindOf(err))
	assert.Equal(t, http.StatusConflict, apperr.UpstreamStatus(err))
	assert.Contains(t, err.Error(), "already exists")
}

func TestDoTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()
	err := New("email", srv.URL, time.Second).Do(context.Background(), http.MethodGet, "/", nil, nil, nil)
	require.Error(t, err)
	assert.Equal(t, apperr.KindUpstream, apperr.KindOf(err))
	assert.Equal(t, 0, apperr.UpstreamStatus(err))
}

func TestReadAllWithLimit(t *testing.T) {
	data, err := ReadAllWithLimit(strings.NewReader("hello"), 5)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	_, err = ReadAllWithLimit(strings.NewReader("hello!"), 5)
	var tooLarge ResponseTooLargeError
	assert.ErrorAs(t, err, &tooLarge)
}

func TestURL(t *testing.T) {
	c := New("ats", "https://api.example.com/v3/", 0)
	assert.Equal(t, "https://api.example.com/v3/candidates/", c.URL("/candidates/", nil))
	assert.Equal(t, "https://other.example.com/x", c.URL("https://other.example.com/x", nil))
	assert.Equal(t, "https://api.example.com/v3/c?email=a%40b.c", c.URL("/c", url.Values{"email": {"a@b.c"}}))
}

func TestProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()
	status, _, err := New("ats", srv.URL, time.Second).Probe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, status)
}
