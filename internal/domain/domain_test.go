package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEveryStatusHasTransitionEntry(t *testing.T) {
	for _, s := range ApplicationStatuses {
		assert.True(t, s.Valid(), string(s))
	}
	assert.False(t, ApplicationStatus("done").Valid())
}

func TestTransitions(t *testing.T) {
	assert.True(t, CanTransition(StatusSubmitted, StatusInterviewInvited))
	assert.True(t, CanTransition(StatusInterviewInvited, StatusInterviewCompleted))
	assert.True(t, CanTransition(StatusInterviewCompleted, StatusAccepted))
	assert.True(t, CanTransition(StatusUnderReview, StatusRejected))
	assert.True(t, CanTransition(StatusSurveyCompleted, StatusSurveyCompleted))

	assert.False(t, CanTransition(StatusSubmitted, StatusAccepted))
	assert.False(t, CanTransition(StatusInterviewCompleted, StatusInterviewInvited))
	assert.False(t, CanTransition(StatusRejected, StatusUnderReview))
	assert.False(t, CanTransition(StatusSubmitted, ApplicationStatus("shortlisted")))
}

func TestTerminalStates(t *testing.T) {
	for _, s := range []ApplicationStatus{StatusAccepted, StatusRejected, StatusWithdrawn} {
		assert.True(t, s.Terminal(), string(s))
	}
	assert.False(t, StatusUnderReview.Terminal())
}

func TestCheckTransitionError(t *testing.T) {
	err := CheckTransition(StatusAccepted, StatusSubmitted)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	var te TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, StatusAccepted, te.From)
	assert.NoError(t, CheckTransition(StatusSubmitted, StatusResumeUploaded))
}

func TestParseApplicationStatus(t *testing.T) {
	s, err := ParseApplicationStatus("under_review")
	require.NoError(t, err)
	assert.Equal(t, StatusUnderReview, s)
	_, err = ParseApplicationStatus("Pending")
	assert.Error(t, err)
}

func TestTraitScoresAccessors(t *testing.T) {
	var s TraitScores
	for i, tr := range Traits {
		s.Set(tr, float64(i+1))
	}
	for i, tr := range Traits {
		assert.Equal(t, float64(i+1), s.Get(tr))
	}
	assert.True(t, Openness.Valid())
	assert.False(t, Trait("neuroticism").Valid())
}
