package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--env-file", ""}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func setCLIEnv(t *testing.T) string {
	t.Helper()
	clearConfigEnv(t)
	dataDir := t.TempDir()
	t.Setenv("DATA_DIR", dataDir)
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("LOG_LEVEL", "error")
	return dataDir
}

func TestCLIGrantProAndStats(t *testing.T) {
	setCLIEnv(t)

	out, err := runCLI(t, "grant-pro", "-1001")
	require.NoError(t, err)
	assert.Contains(t, out, "Group -1001 upgraded to Pro")

	out, err = runCLI(t, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Pro groups:          1")
	assert.Contains(t, out, "Total messages:      0")
}

func TestCLIGrantProRejectsBadID(t *testing.T) {
	setCLIEnv(t)

	_, err := runCLI(t, "grant-pro", "group")
	require.Error(t, err)
	assert.Equal(t, `Invalid chat id: "group"`, err.Error())
}

func TestCLICompactWithSQLite(t *testing.T) {
	setCLIEnv(t)
	t.Setenv("USAGE_BACKEND", "sqlite")

	out, err := runCLI(t, "compact", "--retain-days", "7")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 0 counters")
}

func TestCLIServeNeedsCredentials(t *testing.T) {
	setCLIEnv(t)

	_, err := runCLI(t, "serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GENDOLF_BOT_TOKEN")
}

func TestCLIUnknownBackend(t *testing.T) {
	setCLIEnv(t)
	t.Setenv("USAGE_BACKEND", "redis")

	_, err := runCLI(t, "stats")
	assert.ErrorContains(t, err, "unknown usage backend")
}
