// Package scoring turns Likert answers into per-trait averages.
package scoring

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"internfunnel/internal/config"
	"internfunnel/internal/domain"
)

// Mapping assigns each question number to exactly one trait.
type Mapping struct {
	traits map[int]domain.Trait
	labels map[int]string
}

// NewMapping builds a mapping from a questionnaire definition.
func NewMapping(q config.Questionnaire) Mapping {
	m := Mapping{traits: make(map[int]domain.Trait, len(q.Questions)), labels: make(map[int]string, len(q.Questions))}
	for _, question := range q.Questions {
		m.traits[question.Number] = domain.Trait(question.Trait)
		m.labels[question.Number] = question.Label
	}
	return m
}

// Quiz is the 10-question mapping.
func Quiz() Mapping {
	return NewMapping(config.Default().Questionnaires.Quiz)
}

// Survey is the 30-question mapping.
func Survey() Mapping {
	return NewMapping(config.Default().Questionnaires.Survey)
}

func (m Mapping) Trait(question int) (domain.Trait, bool) {
	t, ok := m.traits[question]
	return t, ok
}

func (m Mapping) Label(question int) string {
	return m.labels[question]
}

// Questions returns question numbers in ascending order.
func (m Mapping) Questions() []int {
	out := make([]int, 0, len(m.traits))
	for n := range m.traits {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

func (m Mapping) Len() int { return len(m.traits) }

// Score averages the answers mapped to each trait. Answers for unknown
// questions are ignored; a trait with no answers scores 0. Values are not
// clamped to the 1-5 range.
func (m Mapping) Score(answers map[int]int) domain.TraitScores {
	sums := make(map[domain.Trait]int, len(domain.Traits))
	counts := make(map[domain.Trait]int, len(domain.Traits))
	for q, v := range answers {
		trait, ok := m.traits[q]
		if !ok {
			continue
		}
		sums[trait] += v
		counts[trait]++
	}
	var scores domain.TraitScores
	for _, trait := range domain.Traits {
		if counts[trait] == 0 {
			continue
		}
		scores.Set(trait, float64(sums[trait])/float64(counts[trait]))
	}
	return scores
}

// ParseAnswers converts wire answers keyed by question number strings
// ("1", "q1", "Q1") into integer keys.
func ParseAnswers(raw map[string]int) (map[int]int, error) {
	out := make(map[int]int, len(raw))
	for key, v := range raw {
		k := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(key), "q"), "Q")
		n, err := strconv.Atoi(k)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid question number %q", key)
		}
		out[n] = v
	}
	return out, nil
}

// FormatAnswers is the inverse of ParseAnswers.
func FormatAnswers(answers map[int]int) map[string]int {
	out := make(map[string]int, len(answers))
	for k, v := range answers {
		out[strconv.Itoa(k)] = v
	}
	return out
}

// FormatScore renders a trait score the way the ATS custom fields store it.
func FormatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
