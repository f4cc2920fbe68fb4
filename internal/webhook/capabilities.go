package webhook

import "time"

// Capabilities is the static document served on GET.
type Capabilities struct {
	Webhook     string   `json:"webhook"`
	Status      string   `json:"status"`
	Timestamp   string   `json:"timestamp"`
	Events      []string `json:"events"`
	Description string   `json:"description"`
	Actions     []string `json:"actions"`
	Setup       Setup    `json:"setup"`
}

type Setup struct {
	URL    string   `json:"url"`
	Method string   `json:"method"`
	Events []string `json:"events"`
}

// InterviewCapabilities describes the interview provider endpoint.
func InterviewCapabilities(url string, now time.Time) Capabilities {
	return Capabilities{
		Webhook:     "Global Internship Initiative - Interview Monitor",
		Status:      "active",
		Timestamp:   now.UTC().Format(time.RFC3339),
		Events:      []string{EventFinish, EventStatusChange, EventStarted, EventRecording, EventUploaded},
		Description: "Monitors the video interview process and updates ATS candidates",
		Actions: []string{
			"Logs all interview events",
			"Updates the ATS candidate with interview results",
			"Sends a branded completion email to candidates",
			"Records a completion signal for the waiting browser",
		},
		Setup: Setup{URL: url, Method: "POST", Events: []string{EventFinish, EventStatusChange}},
	}
}

// ATSCapabilities describes the ATS endpoint.
func ATSCapabilities(url string, now time.Time) Capabilities {
	events := []string{EventCandidateCreated, EventCandidateUpdated, EventCandidateResumeUploaded}
	return Capabilities{
		Webhook:     "Global Internship Initiative - ATS Monitor",
		Status:      "active",
		Timestamp:   now.UTC().Format(time.RFC3339),
		Events:      events,
		Description: "Receives candidate notifications from the ATS",
		Actions:     []string{"Logs candidate events to the funnel event log"},
		Setup:       Setup{URL: url, Method: "POST", Events: events},
	}
}
