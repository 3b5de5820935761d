package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf("state:\n  type: json\n  dir: %s\nsend:\n  daily_cap: 10\n  per_run_cap: 4\nlogging:\n  level: error\n", filepath.Join(dir, "data"))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", configPath}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestSubscribersCommands(t *testing.T) {
	cfg := testConfig(t)

	out, err := execute(t, cfg, "subscribers", "add", "Owner@Example.com", "sc123456")
	require.NoError(t, err)
	assert.Contains(t, out, "Subscribed Owner@Example.com")

	out, err = execute(t, cfg, "subscribers", "add", "owner@example.com", "SC123456")
	require.NoError(t, err)
	assert.Contains(t, out, "already subscribed")

	out, err = execute(t, cfg, "subscribers", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "owner@example.com")
	assert.Contains(t, out, "SC123456")
	assert.Contains(t, out, "manual")
}

func TestSuppressAndStatus(t *testing.T) {
	cfg := testConfig(t)

	_, err := execute(t, cfg, "suppress", "add", "--domain", "acme.com")
	require.NoError(t, err)
	_, err = execute(t, cfg, "suppress", "add", "bounce@example.com")
	require.NoError(t, err)

	out, err := execute(t, cfg, "status")
	require.NoError(t, err)
	assert.Regexp(t, `Sent today \(\d{4}-\d{2}-\d{2} UTC\):\s+0 / 10`, out)
	assert.Regexp(t, `Per-run cap:\s+4`, out)
	assert.Regexp(t, `Suppressed emails:\s+1`, out)
	assert.Regexp(t, `Suppressed domains:\s+1`, out)

	out, err = execute(t, cfg, "suppress", "remove", "acme.com")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed acme.com")

	out, err = execute(t, cfg, "suppress", "remove", "acme.com")
	require.NoError(t, err)
	assert.Contains(t, out, "was not suppressed")
}

func TestCommandArgs(t *testing.T) {
	cfg := testConfig(t)

	_, err := execute(t, cfg, "subscribers", "add", "only-one-arg")
	assert.Error(t, err)

	_, err = execute(t, cfg, "subscribers", "add", "not-an-email", "123")
	assert.Error(t, err)
}
