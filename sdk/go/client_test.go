package funnelsdk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitForSignalPollsUntilCompleted(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/interview-complete-signal", r.URL.Path)
		assert.Equal(t, "101", r.URL.Query().Get("candidate_id"))
		n := polls.Add(1)
		_ = json.NewEncoder(w).Encode(Signal{Success: true, Completed: n >= 3, CandidateID: "101"})
	}))
	defer srv.Close()

	c := New(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sig, err := c.WaitForSignal(ctx, "101", 10*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, sig.Completed)
	assert.Equal(t, int32(3), polls.Load())
}

func TestWaitForSignalTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Signal{Success: true, CandidateID: "101"})
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := New(srv.URL).WaitForSignal(ctx, "101", 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrWaitTimeout)
}

func TestAPIErrorDecodesEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"success":false,"error":{"kind":"unauthorized","message":"Invalid credentials","http_status":401}}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).Login(context.Background(), "admin", "wrong")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "unauthorized", apiErr.Kind)
	assert.Equal(t, "Invalid credentials", apiErr.Message)
}

func TestLoginKeepsToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "token": "tok"})
		case "/api/dashboard/stats":
			if r.Header.Get("Authorization") != "Bearer tok" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "totalApplications": 4})
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Login(context.Background(), "admin", "pw")
	require.NoError(t, err)
	stats, err := c.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalApplications)
}
