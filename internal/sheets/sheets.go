// Package sheets appends questionnaire results to a spreadsheet, either a
// hosted one or a local workbook.
package sheets

import (
	"context"
	"fmt"
	"strings"

	"internfunnel/internal/domain"
	"internfunnel/internal/scoring"
)

// Row is one result laid out for a tab.
type Row struct {
	Sheet  string
	Header []string
	Values []any
}

// Sink appends rows. Implementations create the tab and header row on
// first use.
type Sink interface {
	Name() string
	Append(ctx context.Context, row Row) error
}

// Discard drops every row. It backs the "none" provider.
type Discard struct{}

func (Discard) Name() string                      { return "none" }
func (Discard) Append(context.Context, Row) error { return nil }

// SheetTitle names the tab a questionnaire is written to.
func SheetTitle(title string) string {
	if title == "" {
		title = "Personality Questionnaire"
	}
	return title + " Responses"
}

// DisplayName renders a trait for column headings.
func DisplayName(t domain.Trait) string {
	if t == domain.EmotionalStability {
		return "Emotional Stability"
	}
	s := string(t)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Header lists the columns: metadata, one score per trait in fixed order,
// then one column per question.
func Header(m scoring.Mapping) []string {
	h := []string{"Timestamp", "Candidate ID", "Name", "Email", "ATS Profile URL", "Video Interview URL"}
	for _, t := range domain.Traits {
		h = append(h, DisplayName(t)+" Score")
	}
	for _, q := range m.Questions() {
		h = append(h, questionHeading(q, m.Label(q)))
	}
	return h
}

func questionHeading(n int, label string) string {
	if label == "" {
		return fmt.Sprintf("Q%d", n)
	}
	return fmt.Sprintf("Q%d - %s", n, label)
}

// BuildRow lays a result out under Header(m). Unanswered questions are blank.
func BuildRow(sheet string, res domain.QuestionnaireResult, m scoring.Mapping) Row {
	answers, _ := scoring.ParseAnswers(res.Answers)
	values := []any{
		res.CreatedAt,
		res.CandidateID,
		res.Name,
		res.Email,
		orNotProvided(res.ATSURL),
		orNotProvided(res.InterviewURL),
	}
	for _, t := range domain.Traits {
		values = append(values, scoring.FormatScore(res.TraitScores.Get(t)))
	}
	for _, q := range m.Questions() {
		if v, ok := answers[q]; ok {
			values = append(values, v)
		} else {
			values = append(values, "")
		}
	}
	return Row{Sheet: sheet, Header: Header(m), Values: values}
}

func orNotProvided(s string) string {
	if s == "" {
		return "Not provided"
	}
	return s
}
