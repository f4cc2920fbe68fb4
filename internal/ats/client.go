// Package ats is the client for the applicant tracking system, the
// candidate record of truth.
package ats

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"internfunnel/internal/apperr"
	"internfunnel/internal/upstream"
)

const service = "ats"

type Config struct {
	BaseURL string
	Token   string
	// CandidateURL is a format string with one %s for the candidate id.
	CandidateURL string
	Timeout      time.Duration
	Observer     upstream.Observer
}

type Client struct {
	api          *upstream.Client
	token        string
	candidateURL string
}

func New(cfg Config) *Client {
	api := upstream.New(service, cfg.BaseURL, cfg.Timeout)
	api.Observer = cfg.Observer
	if cfg.Token != "" {
		api.Header.Set("Authorization", "Token "+cfg.Token)
	}
	return &Client{api: api, token: cfg.Token, candidateURL: cfg.CandidateURL}
}

// ID accepts both numeric and string identifiers on the wire.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("candidate id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// MarshalJSON emits numeric ids as numbers, which the provider expects.
func (id ID) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id ID) String() string { return string(id) }

type Candidate struct {
	ID           ID             `json:"id"`
	FullName     string         `json:"full_name"`
	FirstName    string         `json:"first_name,omitempty"`
	LastName     string         `json:"last_name,omitempty"`
	Email        string         `json:"email"`
	Phone        string         `json:"phone_number,omitempty"`
	Source       string         `json:"source,omitempty"`
	Tags         []string       `json:"tags,omitempty"`
	CustomFields map[string]any `json:"custom_fields,omitempty"`
	CreatedAt    string         `json:"created_at,omitempty"`
}

// Field returns a custom field as a string, or "".
func (c Candidate) Field(name string) string {
	v, ok := c.CustomFields[name]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

type NewCandidate struct {
	FirstName    string         `json:"first_name"`
	LastName     string         `json:"last_name"`
	FullName     string         `json:"full_name"`
	Email        string         `json:"email"`
	Phone        string         `json:"phone,omitempty"`
	Source       string         `json:"source,omitempty"`
	Tags         []string       `json:"tags,omitempty"`
	CustomFields map[string]any `json:"custom_fields,omitempty"`
}

type Page struct {
	Count    int         `json:"count"`
	Next     string      `json:"next,omitempty"`
	Previous string      `json:"previous,omitempty"`
	Results  []Candidate `json:"results"`
}

// Resume is a document attached to a candidate.
type Resume struct {
	FileName    string
	ContentType string
	Data        []byte
}

// DocumentType classifies the upload by file name.
func (r Resume) DocumentType() string {
	name := strings.ToLower(r.FileName)
	if strings.Contains(name, "cv") || strings.Contains(name, "resume") {
		return "resume"
	}
	return "other"
}

type ResumeUpload struct {
	ID          ID     `json:"id"`
	CandidateID string `json:"candidate_id"`
	FileName    string `json:"file_name"`
	FileURL     string `json:"file_url"`
	Status      string `json:"upload_status"`
	CreatedAt   string `json:"created_at"`
}

func (c *Client) ready() error {
	if strings.TrimSpace(c.token) == "" {
		return apperr.Config("ATS API token not configured")
	}
	return nil
}

// Configured reports whether a token is present.
func (c *Client) Configured() bool { return c.ready() == nil }

// CandidateURL returns the recruiter-facing link for a candidate.
func (c *Client) CandidateURL(id string) string {
	if c.candidateURL == "" || id == "" {
		return ""
	}
	return fmt.Sprintf(c.candidateURL, id)
}

func (c *Client) CreateCandidate(ctx context.Context, in NewCandidate) (Candidate, error) {
	if err := c.ready(); err != nil {
		return Candidate{}, err
	}
	var out Candidate
	err := c.api.Do(ctx, http.MethodPost, "/candidates/", nil, in, &out)
	return out, err
}

func (c *Client) GetCandidate(ctx context.Context, id string) (Candidate, error) {
	if err := c.ready(); err != nil {
		return Candidate{}, err
	}
	var out Candidate
	err := c.api.Do(ctx, http.MethodGet, "/candidates/"+url.PathEscape(id)+"/", nil, nil, &out)
	if apperr.UpstreamStatus(err) == http.StatusNotFound {
		return Candidate{}, apperr.NotFound("candidate %s not found", id)
	}
	return out, err
}

// FindByEmail returns the first candidate matching email.
func (c *Client) FindByEmail(ctx context.Context, email string) (Candidate, error) {
	if err := c.ready(); err != nil {
		return Candidate{}, err
	}
	var page Page
	if err := c.api.Do(ctx, http.MethodGet, "/candidates/", url.Values{"email": {email}}, nil, &page); err != nil {
		return Candidate{}, err
	}
	if len(page.Results) == 0 {
		return Candidate{}, apperr.NotFound("no candidate with email %s", email)
	}
	return page.Results[0], nil
}

func (c *Client) ListCandidates(ctx context.Context, page, pageSize int) (Page, error) {
	if err := c.ready(); err != nil {
		return Page{}, err
	}
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if pageSize > 0 {
		q.Set("page_size", strconv.Itoa(pageSize))
	}
	var out Page
	err := c.api.Do(ctx, http.MethodGet, "/candidates/", q, nil, &out)
	if out.Results == nil {
		out.Results = []Candidate{}
	}
	return out, err
}

// UpdateCustomFields patches the candidate's custom-field map. The provider
// merges keys, so repeating a patch is harmless.
func (c *Client) UpdateCustomFields(ctx context.Context, id string, fields map[string]any) error {
	if err := c.ready(); err != nil {
		return err
	}
	body := map[string]any{"custom_fields": fields}
	err := c.api.Do(ctx, http.MethodPatch, "/candidates/"+url.PathEscape(id)+"/", nil, body, nil)
	if apperr.UpstreamStatus(err) == http.StatusNotFound {
		return apperr.NotFound("candidate %s not found", id)
	}
	return err
}

func (c *Client) UploadResume(ctx context.Context, id string, r Resume) (ResumeUpload, error) {
	if err := c.ready(); err != nil {
		return ResumeUpload{}, err
	}
	body := map[string]any{
		"candidate":     ID(id),
		"name":          r.FileName,
		"document_type": r.DocumentType(),
		"file_content":  base64.StdEncoding.EncodeToString(r.Data),
		"file_name":     r.FileName,
		"content_type":  r.ContentType,
	}
	var raw struct {
		ID      ID     `json:"id"`
		FileURL string `json:"file_url"`
		URL     string `json:"url"`
	}
	if err := c.api.Do(ctx, http.MethodPost, "/candidates/"+url.PathEscape(id)+"/resume/", nil, body, &raw); err != nil {
		return ResumeUpload{}, err
	}
	fileURL := raw.FileURL
	if fileURL == "" {
		fileURL = raw.URL
	}
	return ResumeUpload{
		ID:          raw.ID,
		CandidateID: id,
		FileName:    r.FileName,
		FileURL:     fileURL,
		Status:      "completed",
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// AddToJob associates a candidate with a job opening.
func (c *Client) AddToJob(ctx context.Context, candidateID, jobID string) error {
	if err := c.ready(); err != nil {
		return err
	}
	body := map[string]any{"candidate": ID(candidateID), "job": ID(jobID)}
	return c.api.Do(ctx, http.MethodPost, "/matches/", nil, body, nil)
}

func (c *Client) DeleteCandidate(ctx context.Context, id string) error {
	if err := c.ready(); err != nil {
		return err
	}
	err := c.api.Do(ctx, http.MethodDelete, "/candidates/"+url.PathEscape(id)+"/", nil, nil, nil)
	if apperr.UpstreamStatus(err) == http.StatusNotFound {
		return apperr.NotFound("candidate %s not found", id)
	}
	return err
}

func (c *Client) Probe(ctx context.Context) (int, time.Duration, error) {
	return c.api.Probe(ctx)
}
