// Package funnelsdk is a small client for the funnel HTTP API, used by the
// CLI's remote commands and by integrations that poll for interview
// completion.
package funnelsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBasePath = "api"

// Client is a minimal funnel API client.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: defaultBasePath,
		Timeout:  15 * time.Second,
	}
}

type Position struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	Location       string   `json:"location,omitempty"`
	EmploymentType string   `json:"employment_type"`
	Status         string   `json:"status"`
	Tags           []string `json:"tags,omitempty"`
}

// Signal is the completion relay state for a candidate.
type Signal struct {
	Success     bool   `json:"success"`
	Completed   bool   `json:"completed"`
	CandidateID string `json:"candidate_id"`
	InterviewID string `json:"interview_id,omitempty"`
	Timestamp   string `json:"timestamp,omitempty"`
}

type CandidateStatus struct {
	CandidateID        string `json:"candidate_id"`
	Status             string `json:"status"`
	InterviewStatus    string `json:"interview_status,omitempty"`
	InterviewURL       string `json:"interview_url,omitempty"`
	SurveyCompleted    bool   `json:"survey_completed"`
	QuizCompleted      bool   `json:"quiz_completed"`
	InterviewCompleted bool   `json:"interview_completed"`
	Message            string `json:"message,omitempty"`
	NextStep           string `json:"next_step,omitempty"`
	Source             string `json:"source"`
}

// Questionnaire is a quiz or survey submission; answers are keyed by
// question number.
type Questionnaire struct {
	Name        string         `json:"name,omitempty"`
	Email       string         `json:"email"`
	CandidateID string         `json:"candidateId,omitempty"`
	Answers     map[string]int `json:"answers"`
}

type TraitScores struct {
	Extraversion       float64 `json:"extraversion"`
	Conscientiousness  float64 `json:"conscientiousness"`
	Agreeableness      float64 `json:"agreeableness"`
	Openness           float64 `json:"openness"`
	EmotionalStability float64 `json:"emotionalStability"`
}

type SinkResult struct {
	Sink    string `json:"sink"`
	OK      bool   `json:"ok"`
	Skipped bool   `json:"skipped,omitempty"`
	Error   string `json:"error,omitempty"`
}

type Submission struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Result  struct {
		ID          string      `json:"id"`
		Kind        string      `json:"kind"`
		TraitScores TraitScores `json:"trait_scores"`
	} `json:"result"`
	Sinks []SinkResult `json:"sinks"`
}

type Stats struct {
	TotalApplications  int            `json:"totalApplications"`
	TotalQuizResults   int            `json:"totalQuizResults"`
	TotalSurveyResults int            `json:"totalSurveyResults"`
	StatusCounts       map[string]int `json:"statusCounts"`
}

// APIError wraps non-2xx responses. Kind and Message come from the error
// envelope when the body carries one.
type APIError struct {
	StatusCode int
	Kind       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error: status=%d kind=%s message=%s", e.StatusCode, e.Kind, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Positions lists the open positions.
func (c *Client) Positions(ctx context.Context) ([]Position, error) {
	var resp struct {
		Positions []Position `json:"positions"`
	}
	err := c.do(ctx, http.MethodGet, "positions", nil, &resp)
	return resp.Positions, err
}

// CandidateStatus returns the server-held journey state.
func (c *Client) CandidateStatus(ctx context.Context, candidateID string) (CandidateStatus, error) {
	var resp struct {
		Status CandidateStatus `json:"status"`
	}
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("candidates/%s/status", url.PathEscape(candidateID)), nil, &resp)
	return resp.Status, err
}

// SubmitQuiz posts the 10-question quiz.
func (c *Client) SubmitQuiz(ctx context.Context, q Questionnaire) (Submission, error) {
	var resp Submission
	err := c.do(ctx, http.MethodPost, "questionnaire/submit", q, &resp)
	return resp, err
}

// SubmitSurvey posts the 30-question survey.
func (c *Client) SubmitSurvey(ctx context.Context, q Questionnaire) (Submission, error) {
	var resp Submission
	err := c.do(ctx, http.MethodPost, "survey/submit", q, &resp)
	return resp, err
}

// RecordSignal marks the candidate's interview as completed.
func (c *Client) RecordSignal(ctx context.Context, candidateID, interviewID string) (Signal, error) {
	var resp Signal
	err := c.do(ctx, http.MethodPost, "interview-complete-signal", map[string]string{
		"candidate_id": candidateID,
		"interview_id": interviewID,
	}, &resp)
	return resp, err
}

// PollSignal consumes a pending completion signal. Completed is true at
// most once per recorded signal.
func (c *Client) PollSignal(ctx context.Context, candidateID string) (Signal, error) {
	var resp Signal
	err := c.do(ctx, http.MethodGet, "interview-complete-signal?candidate_id="+url.QueryEscape(candidateID), nil, &resp)
	return resp, err
}

// ErrWaitTimeout is returned by WaitForSignal when ctx ends first.
var ErrWaitTimeout = errors.New("timed out waiting for completion signal")

// WaitForSignal polls every interval until the signal completes or ctx is
// done.
func (c *Client) WaitForSignal(ctx context.Context, candidateID string, interval time.Duration) (Signal, error) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		sig, err := c.PollSignal(ctx, candidateID)
		if err != nil {
			if ctx.Err() != nil {
				return Signal{}, ErrWaitTimeout
			}
			return Signal{}, err
		}
		if sig.Completed {
			return sig, nil
		}
		select {
		case <-ctx.Done():
			return sig, ErrWaitTimeout
		case <-ticker.C:
		}
	}
}

// Login exchanges admin credentials for a token and keeps it on the client.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "auth/login", map[string]string{
		"username": username,
		"password": password,
	}, &resp); err != nil {
		return "", err
	}
	c.BearerToken = resp.Token
	return resp.Token, nil
}

// Stats returns the dashboard summary. Requires a token.
func (c *Client) Stats(ctx context.Context) (Stats, error) {
	var resp Stats
	err := c.do(ctx, http.MethodGet, "dashboard/stats", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Kind    string `json:"kind"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Kind = env.Error.Kind
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}
