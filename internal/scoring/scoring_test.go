package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"internfunnel/internal/domain"
)

func TestQuizExample(t *testing.T) {
	answers := map[int]int{1: 4, 2: 5, 3: 4, 4: 5, 5: 3, 6: 4, 7: 5, 8: 4, 9: 3, 10: 4}
	got := Quiz().Score(answers)
	assert.Equal(t, domain.TraitScores{
		Extraversion:       3.5,
		Conscientiousness:  4.5,
		Agreeableness:      4.5,
		Openness:           4.5,
		EmotionalStability: 3.5,
	}, got)
}

func TestTraitIndependence(t *testing.T) {
	m := Quiz()
	base := map[int]int{1: 2, 9: 4, 2: 5, 6: 5}
	changed := map[int]int{1: 2, 9: 4, 2: 1, 6: 1}
	assert.Equal(t, m.Score(base).Extraversion, m.Score(changed).Extraversion)
	assert.Equal(t, 3.0, m.Score(base).Extraversion)
}

func TestMeanOverAllLikertCombinations(t *testing.T) {
	m := Survey()
	for a := 1; a <= 5; a++ {
		for b := 1; b <= 5; b++ {
			answers := map[int]int{7: a, 8: b, 9: a, 10: b, 11: a, 12: b}
			want := float64(3*a+3*b) / 6
			assert.InDelta(t, want, m.Score(answers).Agreeableness, 1e-9)
		}
	}
}

func TestPartialTraitExcludesMissingAnswers(t *testing.T) {
	got := Quiz().Score(map[int]int{1: 5})
	assert.Equal(t, 5.0, got.Extraversion)
	assert.Zero(t, got.Openness)
}

func TestOutOfRangeAnswersAreNotClamped(t *testing.T) {
	got := Quiz().Score(map[int]int{4: 9, 8: 7, 42: 1})
	assert.Equal(t, 8.0, got.Openness)
}

func TestSurveyLayout(t *testing.T) {
	m := Survey()
	require.Equal(t, 30, m.Len())
	tr, ok := m.Trait(1)
	require.True(t, ok)
	assert.Equal(t, domain.Extraversion, tr)
	tr, _ = m.Trait(12)
	assert.Equal(t, domain.Agreeableness, tr)
	tr, _ = m.Trait(13)
	assert.Equal(t, domain.Conscientiousness, tr)
	tr, _ = m.Trait(24)
	assert.Equal(t, domain.Openness, tr)
	tr, _ = m.Trait(30)
	assert.Equal(t, domain.EmotionalStability, tr)
	_, ok = m.Trait(31)
	assert.False(t, ok)
}

func TestParseAnswers(t *testing.T) {
	got, err := ParseAnswers(map[string]int{"1": 4, "q2": 5, "Q3": 1})
	require.NoError(t, err)
	assert.Equal(t, map[int]int{1: 4, 2: 5, 3: 1}, got)
	assert.Equal(t, map[string]int{"1": 4, "2": 5, "3": 1}, FormatAnswers(got))

	_, err = ParseAnswers(map[string]int{"first": 4})
	assert.Error(t, err)
}

func TestFormatScore(t *testing.T) {
	assert.Equal(t, "3.50", FormatScore(3.5))
	assert.Equal(t, "4.33", FormatScore(13.0/3))
}
