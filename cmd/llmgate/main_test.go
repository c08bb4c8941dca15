package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aschepis/backscratcher/llmgate/provider"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	base := []string{
		"-config", filepath.Join(dir, "config.yaml"),
		"-env", filepath.Join(dir, ".env"),
		"-logfile", filepath.Join(dir, "llmgate.log"),
	}
	var stdout, stderr bytes.Buffer
	err := run(append(base, args...), &stdout, &stderr)
	return stdout.String(), err
}

func clearKeys(t *testing.T) {
	t.Helper()
	for _, p := range provider.All() {
		t.Setenv(p.KeyName(), "")
	}
}

func TestRunValidate(t *testing.T) {
	clearKeys(t)
	t.Setenv(provider.OpenRouter.KeyName(), "sk-or-v1-"+strings.Repeat("ab12", 16))

	out, err := runCLI(t, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "openrouter")
	assert.Contains(t, out, "ok")

	t.Setenv(provider.Anthropic.KeyName(), "not-a-key")
	out, err = runCLI(t, "validate")
	assert.ErrorContains(t, err, "1 invalid key(s)")
	assert.Contains(t, out, "anthropic")
}

func TestRunProviders(t *testing.T) {
	clearKeys(t)
	t.Setenv(provider.OpenRouter.KeyName(), "sk-or-v1-"+strings.Repeat("ab12", 16))

	out, err := runCLI(t, "providers", "-models")
	require.NoError(t, err)
	for _, p := range provider.All() {
		assert.Contains(t, out, p.DisplayName())
	}
	assert.Contains(t, out, "ready")
	assert.Contains(t, out, "mistralai/mistral-nemo")
}

func TestRunRejectsBadInvocations(t *testing.T) {
	clearKeys(t)

	_, err := runCLI(t)
	assert.ErrorContains(t, err, "missing command")

	_, err = runCLI(t, "serve")
	assert.ErrorContains(t, err, "unknown command")

	_, err = runCLI(t, "generate")
	assert.ErrorContains(t, err, "needs a prompt")

	_, err = runCLI(t, "generate", "-model", "gpt-4o-mini", "hello")
	assert.ErrorContains(t, err, "API key required")
}
