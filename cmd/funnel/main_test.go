package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"internfunnel/internal/config"
	"internfunnel/internal/domain"
)

func TestRedactedMasksSecrets(t *testing.T) {
	cfg := config.Default()
	cfg.Auth.JWTSecret = "jwt"
	cfg.ATS.Token = "ats"
	cfg.Webhooks = []config.WebhookConfig{{URL: "http://example.com", Secret: "hook"}}

	out := redacted(*cfg)
	assert.Equal(t, "********", out.Auth.JWTSecret)
	assert.Equal(t, "********", out.ATS.Token)
	assert.Equal(t, "********", out.Webhooks[0].Secret)
	assert.Empty(t, out.Email.APIKey)
	assert.Equal(t, "hook", cfg.Webhooks[0].Secret)
}

func TestParseKind(t *testing.T) {
	k, err := parseKind(" Survey ", false)
	require.NoError(t, err)
	assert.Equal(t, domain.KindSurvey, k)

	k, err = parseKind("", true)
	require.NoError(t, err)
	assert.Empty(t, k)

	_, err = parseKind("", false)
	assert.Error(t, err)
	_, err = parseKind("exam", true)
	assert.Error(t, err)
}

func TestLoadDotEnvKeepsExistingValues(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("FUNNEL_TEST_A=from-file\nFUNNEL_TEST_B=from-file\n"), 0o644))
	t.Setenv("FUNNEL_TEST_A", "from-env")
	t.Setenv("FUNNEL_TEST_B", "")
	require.NoError(t, os.Unsetenv("FUNNEL_TEST_B"))

	require.NoError(t, loadDotEnv(dir))
	assert.Equal(t, "from-env", os.Getenv("FUNNEL_TEST_A"))
	assert.Equal(t, "from-file", os.Getenv("FUNNEL_TEST_B"))
}

func TestLoadDotEnvMissingFileIsFine(t *testing.T) {
	assert.NoError(t, loadDotEnv(t.TempDir()))
}
