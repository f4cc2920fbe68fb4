package webhook

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestParseRejectsInvalidJSON(t *testing.T) {
	_, err := Parse([]byte(`{"event":`))
	assert.ErrorIs(t, err, ErrInvalidJSON)

	p, err := Parse([]byte(`[1,2]`))
	require.NoError(t, err)
	assert.Equal(t, "", p.Event())
}

func TestNormalizeFlat(t *testing.T) {
	p, err := Parse([]byte(`{
		"event": "interview.finish",
		"external_id": 42,
		"interview": {
			"id": "iv-1",
			"status": "completed",
			"completed_at": "2026-02-28T10:00:00Z",
			"video_url": "https://v/1",
			"candidate": {"name": "Ada Lovelace", "email": "ada@example.com"},
			"position": {"id": "p1", "name": "Data Intern"}
		}
	}`))
	require.NoError(t, err)
	n := Normalize(p, now)
	assert.True(t, n.Completion())
	assert.Equal(t, "42", n.ExternalID)
	assert.Equal(t, "iv-1", n.Interview.ID)
	assert.Equal(t, "2026-02-28T10:00:00Z", n.Interview.CompletedAt)
	assert.Equal(t, "Ada Lovelace", n.Interview.Candidate.Name)
	assert.Equal(t, "Data Intern", n.Interview.Position.Name)
}

func TestNormalizeNestedCompleted(t *testing.T) {
	p, err := Parse([]byte(`{
		"event": "interview.status-change",
		"data": {
			"id": "iv-2",
			"status": "completed",
			"externalId": "c-9",
			"completed": 1700000000000,
			"candidate": {"firstName": " Grace", "lastName": "Hopper ", "email": "grace@example.com"},
			"url": {"public": "https://pub", "short": "https://short", "private": "https://priv"},
			"position": {"id": "p2", "name": "Ops Intern"}
		}
	}`))
	require.NoError(t, err)
	n := Normalize(p, now)
	assert.Equal(t, EventFinish, n.Event)
	assert.True(t, n.Completion())
	assert.Equal(t, "c-9", n.ExternalID)
	assert.Equal(t, "Grace Hopper", n.Interview.Candidate.Name)
	assert.Equal(t, "2023-11-14T22:13:20.000Z", n.Interview.CompletedAt)
	assert.Equal(t, "https://pub", n.Interview.VideoURL)
	assert.Equal(t, "https://short", n.Interview.ShareURL)
}

func TestNormalizeNestedPrefersCombinedName(t *testing.T) {
	p, _ := Parse([]byte(`{"event":"interview.status-change","data":{"status":"completed","candidate":{"name":"G. Hopper","firstName":"Grace","lastName":"Hopper"}}}`))
	n := Normalize(p, now)
	assert.Equal(t, "G. Hopper", n.Interview.Candidate.Name)
	assert.Equal(t, "2026-03-01T12:00:00Z", n.Interview.CompletedAt)
}

func TestNormalizeNestedNotCompleted(t *testing.T) {
	p, _ := Parse([]byte(`{"event":"interview.status-change","data":{"id":"iv-3","status":"started"}}`))
	n := Normalize(p, now)
	assert.Equal(t, EventStatusChange, n.Event)
	assert.False(t, n.Completion())
}

func TestNormalizeToleratesMissingFields(t *testing.T) {
	for _, body := range []string{`{}`, `{"event":"interview.finish"}`, `{"event":"interview.finish","interview":"oops"}`, `{"event":"interview.status-change","data":null}`} {
		p, err := Parse([]byte(body))
		require.NoError(t, err, body)
		n := Normalize(p, now)
		assert.Equal(t, "", n.Interview.Candidate.Email, body)
	}
}

func TestCapabilities(t *testing.T) {
	c := InterviewCapabilities("https://funnel.example/webhooks/interview", now)
	assert.Equal(t, "active", c.Status)
	assert.Contains(t, c.Events, EventStatusChange)
	assert.Equal(t, []string{EventFinish, EventStatusChange}, c.Setup.Events)
}
