package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"internfunnel/internal/domain"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Len(t, cfg.Questionnaires.Quiz.Questions, 10)
	assert.Len(t, cfg.Questionnaires.Survey.Questions, 30)
	assert.Equal(t, "memory", cfg.Signals.Backend)
	assert.Equal(t, 60, cfg.Signals.TTLMinutes)
	assert.Equal(t, "https://api.manatal.com/open/v3", cfg.ATS.BaseURL)
}

func TestSurveyBlocksOfSix(t *testing.T) {
	order := []domain.Trait{domain.Extraversion, domain.Agreeableness, domain.Conscientiousness, domain.Openness, domain.EmotionalStability}
	for _, q := range Default().Questionnaire(domain.KindSurvey).Questions {
		assert.Equal(t, string(order[(q.Number-1)/6]), q.Trait, "question %d", q.Number)
	}
}

func TestFromYAMLLayersOverDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte("ats:\n  token: abc\nsignals:\n  backend: sql\n"))
	require.NoError(t, err)
	assert.Equal(t, "abc", cfg.ATS.Token)
	assert.Equal(t, "sql", cfg.Signals.Backend)
	assert.Equal(t, "https://api.manatal.com/open/v3", cfg.ATS.BaseURL)
}

func TestValidateRejectsBadQuestionnaire(t *testing.T) {
	_, err := FromYAML([]byte(`questionnaires:
  quiz:
    questions:
      - {number: 1, trait: extraversion}
      - {number: 1, trait: openness}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate question 1")

	_, err = FromYAML([]byte(`questionnaires:
  quiz:
    questions:
      - {number: 1, trait: extraversion}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no questions")
}

func TestValidateProviders(t *testing.T) {
	_, err := FromYAML([]byte("sheets:\n  provider: airtable\n"))
	assert.Error(t, err)
	_, err = FromYAML([]byte("sheets:\n  provider: google\n"))
	assert.Error(t, err)
	_, err = FromYAML([]byte("signals:\n  backend: redis\n"))
	assert.Error(t, err)
}

func TestLoadOptionalMissingFile(t *testing.T) {
	cfg, err := LoadOptional(filepath.Join(t.TempDir(), "funnel.yml"))
	require.NoError(t, err)
	assert.Equal(t, "admin", cfg.Auth.AdminUsername)
}

func TestLoadReadsFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(Path(dir), []byte("auth:\n  admin_username: ops\n"), 0o644))
	cfg, err := Load(Path(dir))
	require.NoError(t, err)
	assert.Equal(t, "ops", cfg.Auth.AdminUsername)

	_, err = Load(filepath.Join(dir, "missing.yml"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("FUNNEL_ATS_TOKEN", "prefixed")
	t.Setenv("MANATAL_API_TOKEN", "legacy")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("FUNNEL_EMAIL_SEND_CONFIRMATION", "false")

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(viper.New()))
	assert.Equal(t, "prefixed", cfg.ATS.Token)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.False(t, cfg.Email.SendConfirmation)
	assert.True(t, cfg.Email.SendInterviewComplete)
}
