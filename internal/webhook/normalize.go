package webhook

import (
	"strings"
	"time"
)

type Candidate struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

type Position struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Interview struct {
	ID          string    `json:"id"`
	Status      string    `json:"status"`
	CompletedAt string    `json:"completed_at"`
	VideoURL    string    `json:"video_url,omitempty"`
	ShareURL    string    `json:"share_url,omitempty"`
	Candidate   Candidate `json:"candidate"`
	Position    Position  `json:"position"`
}

// Notification is the canonical flat form of an interview event.
type Notification struct {
	Event      string    `json:"event"`
	ExternalID string    `json:"external_id,omitempty"`
	Interview  Interview `json:"interview"`
}

// Completion reports whether the notification should be reconciled.
func (n Notification) Completion() bool {
	return n.Event == EventFinish
}

// Normalize maps either payload shape onto a Notification. A completed
// status-change is rewritten as a finish event; a status-change with any
// other status keeps its event name so callers can acknowledge it without
// acting. now stamps completed_at when the provider sent none.
func Normalize(p Payload, now time.Time) Notification {
	if p.Event() == EventStatusChange {
		if _, nested := p.Lookup("data"); nested {
			return fromNested(p, now)
		}
	}
	return fromFlat(p, now)
}

func fromFlat(p Payload, now time.Time) Notification {
	first := p.first("interview.candidate.first_name", "interview.candidate.firstName")
	last := p.first("interview.candidate.last_name", "interview.candidate.lastName")
	completed := p.String("interview.completed_at")
	if completed == "" {
		if ms, ok := p.Int64("interview.completed"); ok {
			completed = millisISO(ms)
		}
	}
	if completed == "" {
		completed = now.UTC().Format(time.RFC3339)
	}
	return Notification{
		Event:      p.Event(),
		ExternalID: p.first("external_id", "externalId"),
		Interview: Interview{
			ID:          p.String("interview.id"),
			Status:      p.String("interview.status"),
			CompletedAt: completed,
			VideoURL:    p.String("interview.video_url"),
			ShareURL:    p.String("interview.share_url"),
			Candidate: Candidate{
				Name:      composeName(p.String("interview.candidate.name"), first, last),
				Email:     p.String("interview.candidate.email"),
				FirstName: first,
				LastName:  last,
			},
			Position: Position{
				ID:   p.String("interview.position.id"),
				Name: p.String("interview.position.name"),
			},
		},
	}
}

func fromNested(p Payload, now time.Time) Notification {
	status := p.String("data.status")
	event := EventStatusChange
	if status == StatusCompleted {
		event = EventFinish
	}
	completed := now.UTC().Format(time.RFC3339)
	if ms, ok := p.Int64("data.completed"); ok && ms > 0 {
		completed = millisISO(ms)
	}
	first := p.String("data.candidate.firstName")
	last := p.String("data.candidate.lastName")
	return Notification{
		Event:      event,
		ExternalID: p.first("data.externalId", "external_id"),
		Interview: Interview{
			ID:          p.String("data.id"),
			Status:      status,
			CompletedAt: completed,
			VideoURL:    p.String("data.url.public"),
			ShareURL:    p.String("data.url.short"),
			Candidate: Candidate{
				Name:      composeName(p.String("data.candidate.name"), first, last),
				Email:     p.String("data.candidate.email"),
				FirstName: first,
				LastName:  last,
			},
			Position: Position{
				ID:   p.String("data.position.id"),
				Name: p.String("data.position.name"),
			},
		},
	}
}

// composeName prefers the combined name, else joins first and last.
func composeName(name, first, last string) string {
	if name != "" {
		return name
	}
	return strings.TrimSpace(first + " " + last)
}

func millisISO(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("2006-01-02T15:04:05.000Z")
}
