// Package email sends transactional mail through the provider's HTTP API.
package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"time"

	"internfunnel/internal/apperr"
	"internfunnel/internal/upstream"
)

const service = "email"

const (
	SubjectConfirmation      = "Application Received - Global Internship Initiative"
	SubjectInterviewComplete = "Interview Complete - Global Internship Initiative 🎉"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type Config struct {
	BaseURL  string
	APIKey   string
	From     string
	ReplyTo  string
	Timeout  time.Duration
	Observer upstream.Observer
}

type Client struct {
	api     *upstream.Client
	apiKey  string
	from    string
	replyTo string
	now     func() time.Time
}

func New(cfg Config) *Client {
	api := upstream.New(service, cfg.BaseURL, cfg.Timeout)
	api.Observer = cfg.Observer
	if cfg.APIKey != "" {
		api.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}
	return &Client{api: api, apiKey: cfg.APIKey, from: cfg.From, replyTo: cfg.ReplyTo, now: time.Now}
}

func (c *Client) Configured() bool { return strings.TrimSpace(c.apiKey) != "" }

type Message struct {
	From    string   `json:"from"`
	To      []string `json:"to" validate:"required,min=1,dive,email"`
	ReplyTo string   `json:"reply_to,omitempty"`
	Subject string   `json:"subject" validate:"required"`
	HTML    string   `json:"html" validate:"required"`
}

type Sent struct {
	ID string `json:"id"`
}

// Send delivers msg. An empty From falls back to the configured sender.
func (c *Client) Send(ctx context.Context, msg Message) (Sent, error) {
	if !c.Configured() {
		return Sent{}, apperr.Config("email API key not configured")
	}
	if len(msg.To) == 0 {
		return Sent{}, apperr.MissingField("to")
	}
	if msg.Subject == "" {
		return Sent{}, apperr.MissingField("subject")
	}
	if msg.HTML == "" {
		return Sent{}, apperr.MissingField("html")
	}
	if msg.From == "" {
		msg.From = c.from
	}
	if msg.ReplyTo == "" {
		msg.ReplyTo = c.replyTo
	}
	var out Sent
	err := c.api.Do(ctx, http.MethodPost, "/emails", nil, msg, &out)
	return out, err
}

// SendConfirmation mails the application-received note.
func (c *Client) SendConfirmation(ctx context.Context, to, name, appURL string) (Sent, error) {
	html, err := c.render("confirmation.html", name, appURL, "I've just applied for the Global Internship Initiative with 59club Academy! Find out more here: ")
	if err != nil {
		return Sent{}, err
	}
	return c.Send(ctx, Message{To: []string{to}, Subject: SubjectConfirmation, HTML: html})
}

// SendInterviewComplete mails the interview-received note.
func (c *Client) SendInterviewComplete(ctx context.Context, to, name, appURL string) (Sent, error) {
	html, err := c.render("interview_complete.html", name, appURL, "I've just completed my video interview for the Global Internship Initiative with 59club Academy! Find out more: ")
	if err != nil {
		return Sent{}, err
	}
	return c.Send(ctx, Message{To: []string{to}, Subject: SubjectInterviewComplete, HTML: html})
}

type pageData struct {
	Name     string
	Year     int
	Twitter  string
	LinkedIn string
	Facebook string
}

func (c *Client) render(name, candidate, appURL, tweet string) (string, error) {
	if candidate == "" {
		candidate = "there"
	}
	data := pageData{
		Name:     candidate,
		Year:     c.now().Year(),
		Twitter:  "https://twitter.com/intent/tweet?" + url.Values{"text": {tweet + appURL}}.Encode(),
		LinkedIn: "https://www.linkedin.com/shareArticle?" + url.Values{"mini": {"true"}, "url": {appURL}, "title": {"Global Internship Initiative"}}.Encode(),
		Facebook: "https://www.facebook.com/sharer/sharer.php?" + url.Values{"u": {appURL}}.Encode(),
	}
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", apperr.Internal(fmt.Errorf("render %s: %w", name, err))
	}
	return buf.String(), nil
}

func (c *Client) Probe(ctx context.Context) (int, time.Duration, error) {
	return c.api.Probe(ctx)
}
