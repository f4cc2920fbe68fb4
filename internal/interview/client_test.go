package interview

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"internfunnel/internal/apperr"
)

func newTestClient(t *testing.T, reply func(req gqlRequest) (int, string)) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("X-API-KEY"))
		var req gqlRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		status, body := reply(req)
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, APIKey: "key", Timeout: time.Second})
}

func TestListPositionsFiltersArchived(t *testing.T) {
	c := newTestClient(t, func(req gqlRequest) (int, string) {
		return 200, `{"data":{"positions":[
			{"id":"p1","name":"Data Intern","description":"","archived":false,"tags":["Data","Remote"]},
			{"id":"p2","name":"Old","archived":true,"tags":[]}
		]}}`
	})
	got, err := c.ListPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Data Intern", got[0].Title)
	assert.Equal(t, "Data, Remote", got[0].Department)
	assert.Equal(t, "No description available", got[0].Description)
	assert.Equal(t, "Internship", got[0].EmploymentType)
	assert.Equal(t, "open", got[0].Status)
}

func TestInvite(t *testing.T) {
	c := newTestClient(t, func(req gqlRequest) (int, string) {
		assert.Equal(t, "p1", req.Variables["positionId"])
		assert.Equal(t, "ada@example.com", req.Variables["candidateEmail"])
		return 200, `{"data":{"Position":{"invite":{"id":"iv-1","url":{"public":"https://iv.example/iv-1"}}}}}`
	})
	inv, err := c.Invite(context.Background(), "p1", "ada@example.com", "Ada Lovelace")
	require.NoError(t, err)
	assert.Equal(t, Invitation{ID: "iv-1", URL: "https://iv.example/iv-1"}, inv)
}

func TestInviteConflict(t *testing.T) {
	replies := []struct {
		status int
		body   string
	}{
		{200, `{"errors":[{"message":"Conflict","code":409}]}`},
		{200, `{"errors":[{"message":"Candidate already invited"}]}`},
		{409, `{"message":"conflict"}`},
	}
	for _, r := range replies {
		c := newTestClient(t, func(gqlRequest) (int, string) { return r.status, r.body })
		_, err := c.Invite(context.Background(), "p1", "ada@example.com", "Ada")
		assert.ErrorIs(t, err, ErrAlreadyInvited, r.body)
	}
}

func TestInviteOtherErrorIsUpstream(t *testing.T) {
	c := newTestClient(t, func(gqlRequest) (int, string) {
		return 200, `{"errors":[{"message":"Position not found","code":404}]}`
	})
	_, err := c.Invite(context.Background(), "nope", "ada@example.com", "Ada")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAlreadyInvited)
	assert.Equal(t, apperr.KindUpstream, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "Position not found")
}

func TestGetInterview(t *testing.T) {
	c := newTestClient(t, func(req gqlRequest) (int, string) {
		if req.Variables["id"] == "missing" {
			return 200, `{"data":{"Interview":null}}`
		}
		return 200, `{"data":{"Interview":{"id":"iv-1","status":"completed","videoUrl":"https://v","score":4.5,"completedAt":1700000000000,"candidate":{"name":"Ada","email":"ada@example.com"}}}}`
	})
	res, err := c.GetInterview(context.Background(), "iv-1")
	require.NoError(t, err)
	assert.Equal(t, "completed", res.Status)
	require.NotNil(t, res.Score)
	assert.Equal(t, 4.5, *res.Score)
	assert.Equal(t, "2023-11-14T22:13:20Z", res.CompletedAt)

	_, err = c.GetInterview(context.Background(), "missing")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestMissingKey(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:1"})
	_, err := c.ListPositions(context.Background())
	assert.Equal(t, apperr.KindConfig, apperr.KindOf(err))
}
