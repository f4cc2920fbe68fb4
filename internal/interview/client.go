// Package interview talks to the asynchronous video-interview provider's
// GraphQL API: open positions, invitations and interview results.
package interview

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"internfunnel/internal/apperr"
	"internfunnel/internal/domain"
	"internfunnel/internal/upstream"
)

const service = "interview"

// ErrAlreadyInvited is returned by Invite when the provider reports the
// candidate already holds an invitation for the position.
var ErrAlreadyInvited = errors.New("candidate was already invited to this position")

type Config struct {
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
	Observer upstream.Observer
}

type Client struct {
	api    *upstream.Client
	apiKey string
}

func New(cfg Config) *Client {
	api := upstream.New(service, cfg.BaseURL, cfg.Timeout)
	api.Observer = cfg.Observer
	if cfg.APIKey != "" {
		api.Header.Set("X-API-KEY", cfg.APIKey)
	}
	return &Client{api: api, apiKey: cfg.APIKey}
}

func (c *Client) ready() error {
	if strings.TrimSpace(c.apiKey) == "" {
		return apperr.Config("interview provider API key not configured")
	}
	return nil
}

func (c *Client) Configured() bool { return c.ready() == nil }

// GraphQLError is one entry of a GraphQL "errors" array. Code is whatever
// the provider sent, number or string.
type GraphQLError struct {
	Message string `json:"message"`
	Code    any    `json:"code,omitempty"`
}

func (e GraphQLError) code() int {
	switch v := e.Code.(type) {
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	}
	return 0
}

// GraphQLErrors is returned when the response carried an errors array.
type GraphQLErrors []GraphQLError

func (e GraphQLErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, item := range e {
		msgs = append(msgs, item.Message)
	}
	return strings.Join(msgs, ", ")
}

func (e GraphQLErrors) hasConflict() bool {
	for _, item := range e {
		if item.code() == http.StatusConflict || strings.Contains(strings.ToLower(item.Message), "already invited") {
			return true
		}
	}
	return false
}

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type gqlResponse[T any] struct {
	Data    T             `json:"data"`
	Errors  GraphQLErrors `json:"errors"`
	Message string        `json:"message"`
}

func query[T any](ctx context.Context, c *Client, q string, vars map[string]any) (T, error) {
	var out gqlResponse[T]
	if err := c.ready(); err != nil {
		return out.Data, err
	}
	err := c.api.Do(ctx, http.MethodPost, "", nil, gqlRequest{Query: q, Variables: vars}, &out)
	if err != nil {
		return out.Data, err
	}
	if len(out.Errors) > 0 {
		return out.Data, apperr.Upstream(service, http.StatusOK, out.Errors)
	}
	if out.Message == "Unauthorized" {
		return out.Data, apperr.Upstream(service, http.StatusUnauthorized, errors.New(out.Message))
	}
	return out.Data, nil
}

const positionsQuery = `query {
  positions {
    id
    name
    description
    archived
    tags
  }
}`

type position struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Archived    bool     `json:"archived"`
	Tags        []string `json:"tags"`
}

// ListPositions returns the provider's non-archived positions.
func (c *Client) ListPositions(ctx context.Context) ([]domain.Position, error) {
	data, err := query[struct {
		Positions []position `json:"positions"`
	}](ctx, c, positionsQuery, nil)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Position, 0, len(data.Positions))
	for _, p := range data.Positions {
		if p.Archived {
			continue
		}
		out = append(out, toPosition(p))
	}
	return out, nil
}

func toPosition(p position) domain.Position {
	desc := p.Description
	if desc == "" {
		desc = "No description available"
	}
	dept := strings.Join(p.Tags, ", ")
	if dept == "" {
		dept = "General"
	}
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	return domain.Position{
		ID:             p.ID,
		Title:          p.Name,
		Description:    desc,
		Location:       "Various International Locations",
		Department:     dept,
		EmploymentType: "Internship",
		Status:         "open",
		Tags:           tags,
	}
}

const inviteMutation = `mutation InviteCandidate($positionId: String!, $candidateEmail: String!, $candidateName: String!) {
  Position(id: $positionId) {
    invite(candidate: { email: $candidateEmail, name: $candidateName }) {
      url {
        public
      }
      id
    }
  }
}`

// Invitation is a freshly created interview.
type Invitation struct {
	ID  string
	URL string
}

// Invite creates an interview invitation. A provider conflict, reported
// either as HTTP 409 or as a GraphQL error with code 409, comes back as
// ErrAlreadyInvited.
func (c *Client) Invite(ctx context.Context, positionID, email, name string) (Invitation, error) {
	data, err := query[struct {
		Position *struct {
			Invite *struct {
				ID  string `json:"id"`
				URL struct {
					Public string `json:"public"`
				} `json:"url"`
			} `json:"invite"`
		} `json:"Position"`
	}](ctx, c, inviteMutation, map[string]any{
		"positionId":     positionID,
		"candidateEmail": email,
		"candidateName":  name,
	})
	if err != nil {
		if apperr.UpstreamStatus(err) == http.StatusConflict {
			return Invitation{}, ErrAlreadyInvited
		}
		var gqlErrs GraphQLErrors
		if errors.As(err, &gqlErrs) && gqlErrs.hasConflict() {
			return Invitation{}, ErrAlreadyInvited
		}
		return Invitation{}, err
	}
	if data.Position == nil || data.Position.Invite == nil {
		return Invitation{}, apperr.Upstream(service, http.StatusOK, errors.New("no interview data returned"))
	}
	return Invitation{ID: data.Position.Invite.ID, URL: data.Position.Invite.URL.Public}, nil
}

const interviewQuery = `query GetInterview($id: String!) {
  Interview(id: $id) {
    id
    status
    videoUrl
    transcriptUrl
    score
    feedback
    completedAt
    candidate {
      name
      email
    }
  }
}`

// Result is a recorded interview as reported by the provider.
type Result struct {
	ID             string   `json:"id"`
	Status         string   `json:"status"`
	VideoURL       string   `json:"video_url,omitempty"`
	TranscriptURL  string   `json:"transcript_url,omitempty"`
	Score          *float64 `json:"score,omitempty"`
	Feedback       string   `json:"feedback,omitempty"`
	CompletedAt    string   `json:"completed_at,omitempty"`
	CandidateName  string   `json:"-"`
	CandidateEmail string   `json:"-"`
}

func (c *Client) GetInterview(ctx context.Context, id string) (Result, error) {
	data, err := query[struct {
		Interview *struct {
			ID            string   `json:"id"`
			Status        string   `json:"status"`
			VideoURL      string   `json:"videoUrl"`
			TranscriptURL string   `json:"transcriptUrl"`
			Score         *float64 `json:"score"`
			Feedback      string   `json:"feedback"`
			CompletedAt   any      `json:"completedAt"`
			Candidate     struct {
				Name  string `json:"name"`
				Email string `json:"email"`
			} `json:"candidate"`
		} `json:"Interview"`
	}](ctx, c, interviewQuery, map[string]any{"id": id})
	if err != nil {
		return Result{}, err
	}
	iv := data.Interview
	if iv == nil {
		return Result{}, apperr.NotFound("Interview not found")
	}
	return Result{
		ID:             iv.ID,
		Status:         iv.Status,
		VideoURL:       iv.VideoURL,
		TranscriptURL:  iv.TranscriptURL,
		Score:          iv.Score,
		Feedback:       iv.Feedback,
		CompletedAt:    timestampString(iv.CompletedAt),
		CandidateName:  iv.Candidate.Name,
		CandidateEmail: iv.Candidate.Email,
	}, nil
}

// timestampString renders epoch milliseconds as RFC 3339 and passes strings
// through.
func timestampString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return time.UnixMilli(int64(t)).UTC().Format(time.RFC3339)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func (c *Client) Probe(ctx context.Context) (int, time.Duration, error) {
	return c.api.Probe(ctx)
}
