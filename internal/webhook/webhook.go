// Package webhook parses inbound provider notifications. Payloads are
// decoded into a generic tree and every field read is optional, so unknown
// or partial shapes never fail parsing.
package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Interview provider event names.
const (
	EventFinish       = "interview.finish"
	EventStatusChange = "interview.status-change"
	EventStarted      = "interview.started"
	EventRecording    = "interview.recording"
	EventUploaded     = "interview.uploaded"
)

// ATS event names.
const (
	EventCandidateCreated        = "candidate.created"
	EventCandidateUpdated        = "candidate.updated"
	EventCandidateResumeUploaded = "candidate.resume.uploaded"
)

const StatusCompleted = "completed"

var ErrInvalidJSON = errors.New("invalid JSON payload")

// Payload is a decoded notification body.
type Payload struct {
	root map[string]any
}

// Parse decodes body. Only malformed JSON is an error; a non-object body
// parses to an empty payload.
func Parse(body []byte) (Payload, error) {
	var v any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	root, _ := v.(map[string]any)
	return Payload{root: root}, nil
}

// Raw returns the decoded object.
func (p Payload) Raw() map[string]any { return p.root }

func (p Payload) Event() string { return p.String("event") }

// Lookup walks a dotted path through nested objects.
func (p Payload) Lookup(path string) (any, bool) {
	var cur any = p.root
	for _, key := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[key]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

// String returns the value at path rendered as a string, or "".
func (p Payload) String(path string) string {
	v, ok := p.Lookup(path)
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

// Int64 returns the numeric value at path.
func (p Payload) Int64(path string) (int64, bool) {
	v, ok := p.Lookup(path)
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, true
		}
		if f, err := t.Float64(); err == nil {
			return int64(f), true
		}
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

// first returns the first non-empty string among paths.
func (p Payload) first(paths ...string) string {
	for _, path := range paths {
		if s := p.String(path); s != "" {
			return s
		}
	}
	return ""
}
