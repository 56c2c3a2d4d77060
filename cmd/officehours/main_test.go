package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T) (configPath, storePath string) {
	t.Helper()
	dir := t.TempDir()
	configPath = filepath.Join(dir, "config.yaml")
	storePath = filepath.Join(dir, "calendar.ics")
	require.NoError(t, os.WriteFile(configPath, []byte(strings.Join([]string{
		"timezone: America/New_York",
		"store_path: " + storePath,
		"store_lock: true",
		"log_level: error",
		"",
	}, "\n")), 0o600))
	return configPath, storePath
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCLI_CreateEditDelete(t *testing.T) {
	configPath, storePath := writeConfig(t)

	out, err := run(t, "--config", configPath, "create",
		"--owner-id", "42", "--owner-name", "alice",
		"--year", "2024", "--month", "1", "--day", "7", "--hour", "10",
		"--duration-hours", "1", "--weeks", "4")
	require.NoError(t, err)
	assert.Equal(t, "Added 4 events starting from Jan 07 Sun 10:00 AM to Jan 28 Sun 10:00 AM\n", out)

	data, err := os.ReadFile(storePath)
	require.NoError(t, err)
	assert.Equal(t, 4, strings.Count(string(data), "BEGIN:VEVENT"))

	out, err = run(t, "--config", configPath, "edit",
		"--owner-id", "42", "--owner-name", "alice",
		"--from-year", "2024", "--from-month", "1", "--from-day", "7", "--from-hour", "10",
		"--to-year", "2024", "--to-month", "1", "--to-day", "7", "--to-hour", "2", "--to-pm",
		"--weeks", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Jan 07 Sun 10:00 AM was changed to Jan 07 Sun 02:00 PM")
	assert.Contains(t, out, "Jan 14 Sun 10:00 AM was changed to Jan 14 Sun 02:00 PM")

	out, err = run(t, "--config", configPath, "delete",
		"--owner-id", "42", "--owner-name", "alice",
		"--year", "2024", "--month", "1", "--day", "21", "--hour", "10",
		"--weeks", "2")
	require.NoError(t, err)
	assert.Equal(t, "Deleted the following office hours:\n"+
		"Removed office hours at Jan 21 Sun 10:00 AM\n"+
		"Removed office hours at Jan 28 Sun 10:00 AM\n\n", out)

	out, err = run(t, "--config", configPath, "list", "--owner-id", "42", "--owner-name", "alice")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "alice's office hours for this week:\n"))
}

func TestCLI_RejectsInvalidInput(t *testing.T) {
	configPath, _ := writeConfig(t)

	_, err := run(t, "--config", configPath, "create",
		"--owner-id", "42", "--owner-name", "alice",
		"--year", "2024", "--month", "2", "--day", "30", "--hour", "10")
	require.Error(t, err)

	_, err = run(t, "--config", configPath, "create",
		"--owner-id", "42", "--owner-name", "alice",
		"--month", "2", "--day", "3", "--hour", "10", "--duration-minutes", "-5")
	require.Error(t, err)

	_, err = run(t, "--config", configPath, "delete", "--owner-name", "alice",
		"--month", "2", "--day", "3", "--hour", "10")
	require.Error(t, err, "owner id is required")
}

func TestCLI_PruneEmptyStore(t *testing.T) {
	configPath, storePath := writeConfig(t)

	out, err := run(t, "--config", configPath, "prune", "--older-than", "24h")
	require.NoError(t, err)
	assert.Contains(t, out, "None")

	_, err = os.Stat(storePath)
	require.NoError(t, err, "setup initializes the store file")
}

func TestCLI_PruneWithRetentionDisabled(t *testing.T) {
	configPath, storePath := writeConfig(t)

	_, err := run(t, "--config", configPath, "create",
		"--owner-id", "42", "--owner-name", "alice",
		"--year", "2024", "--month", "1", "--day", "7", "--hour", "10", "--weeks", "2")
	require.NoError(t, err)

	_, err = run(t, "--config", configPath, "prune")
	require.ErrorContains(t, err, "--older-than")

	data, err := os.ReadFile(storePath)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "BEGIN:VEVENT"), "nothing is pruned without a cutoff")

	out, err := run(t, "--config", configPath, "prune", "--older-than", "0s")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed office hours at Jan 07 Sun 10:00 AM")
	assert.Contains(t, out, "Removed office hours at Jan 14 Sun 10:00 AM")
}
