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

func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "babblebot.yaml")
	doc := "database:\n  driver: sqlite\n  name: " + filepath.Join(dir, "bot.db") + "\n" + extra
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	return path
}

func babblectl(t *testing.T, cfg string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), append([]string{"-config", cfg}, args...), &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func TestRun_Usage(t *testing.T) {
	cfg := writeConfig(t, "")

	_, stderr, err := babblectl(t, cfg)
	assert.ErrorIs(t, err, errUsage)
	assert.Contains(t, stderr, "usage: babblectl")

	_, stderr, err = babblectl(t, cfg, "explode")
	assert.ErrorIs(t, err, errUsage)
	assert.Contains(t, stderr, `unknown command "explode"`)

	_, stderr, err = babblectl(t, cfg, "ignore", "add", "g1", "robot", "x")
	assert.ErrorIs(t, err, errUsage)
	assert.Contains(t, stderr, "kind must be user or channel")

	_, _, err = babblectl(t, cfg, "plugin", "get", "weather")
	assert.ErrorIs(t, err, errUsage)
}

func TestRun_Ping(t *testing.T) {
	out, _, err := babblectl(t, writeConfig(t, ""), "ping")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "ok sqlite "), out)
}

func TestRun_Ignore(t *testing.T) {
	cfg := writeConfig(t, "")

	out, _, err := babblectl(t, cfg, "ignore", "add", "g1", "user", "u1", "admin")
	require.NoError(t, err)
	assert.Equal(t, "ignoring user u1 in g1\n", out)

	_, _, err = babblectl(t, cfg, "ignore", "add", "g1", "channel", "c1")
	require.NoError(t, err)

	out, _, err = babblectl(t, cfg, "ignore", "check", "g1", "c1", "u2")
	require.NoError(t, err)
	assert.Equal(t, "true\n", out)

	out, _, err = babblectl(t, cfg, "ignore", "ls", "g1")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "user")
	assert.Contains(t, lines[1], "admin")
	assert.Contains(t, lines[2], "channel")

	out, _, err = babblectl(t, cfg, "ignore", "rm", "g1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "removed 1 rule(s)\n", out)

	out, _, err = babblectl(t, cfg, "ignore", "check", "g1", "c9", "u1")
	require.NoError(t, err)
	assert.Equal(t, "false\n", out)
}

func TestRun_Announce(t *testing.T) {
	cfg := writeConfig(t, "")

	out, _, err := babblectl(t, cfg, "announce", "get", "g1")
	require.NoError(t, err)
	assert.Equal(t, "no announcement channel for g1\n", out)

	out, _, err = babblectl(t, cfg, "announce", "set", "g1", "c1")
	require.NoError(t, err)
	assert.Equal(t, "announcements for g1 go to c1\n", out)

	_, _, err = babblectl(t, cfg, "announce", "set", "g1", "c2")
	require.NoError(t, err)

	out, _, err = babblectl(t, cfg, "announce", "get", "g1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "c2 (updated "), out)

	out, _, err = babblectl(t, cfg, "announce", "rm", "g1")
	require.NoError(t, err)
	assert.Equal(t, "removed: true\n", out)
}

func TestRun_Plugin(t *testing.T) {
	cfg := writeConfig(t, "")

	out, _, err := babblectl(t, cfg, "plugin", "put", "weather", "g1", "default", `{"city": "Leeds"}`)
	require.NoError(t, err)
	assert.Equal(t, "weather/default = {\"city\":\"Leeds\"}\n", out)

	_, _, err = babblectl(t, cfg, "plugin", "put", "weather", "-", "motd", "sunny")
	require.NoError(t, err)

	out, _, err = babblectl(t, cfg, "plugin", "get", "weather", "-", "motd")
	require.NoError(t, err)
	assert.Equal(t, "\"sunny\"\n", out)

	out, _, err = babblectl(t, cfg, "plugin", "ls", "weather", "g1")
	require.NoError(t, err)
	assert.Contains(t, out, "default")
	assert.NotContains(t, out, "motd", "global records are a separate scope")

	out, _, err = babblectl(t, cfg, "plugin", "rm", "weather", "g1", "default")
	require.NoError(t, err)
	assert.Equal(t, "removed: true\n", out)

	_, _, err = babblectl(t, cfg, "plugin", "get", "weather", "g1", "default")
	assert.EqualError(t, err, "weather/default not set")
}

func TestRun_Tracing(t *testing.T) {
	cfg := writeConfig(t, "logging:\n  level: debug\n  format: json\ntracing:\n  enabled: true\n")

	_, stderr, err := babblectl(t, cfg, "ping")
	require.NoError(t, err)
	assert.Contains(t, stderr, `"msg":"span finished"`)
	assert.Contains(t, stderr, `"name":"babble.command"`)
}

func TestRun_BadConfig(t *testing.T) {
	_, _, err := babblectl(t, writeConfig(t, "logging:\n  backend: logrus\n"), "ping")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, errUsage)
}

func TestRun_Audit(t *testing.T) {
	cfg := writeConfig(t, "logging:\n  format: json\n")

	_, stderr, err := babblectl(t, cfg, "-actor", "mod", "announce", "set", "g1", "c1")
	require.NoError(t, err)
	assert.Contains(t, stderr, `"msg":"audit event"`)
	assert.Contains(t, stderr, `"actor":"mod"`)
	assert.Contains(t, stderr, `"command":"announce set"`)
	assert.Contains(t, stderr, `"table":"announcement_channels"`)

	quiet := writeConfig(t, "logging:\n  audit: none\n")
	_, stderr, err = babblectl(t, quiet, "announce", "set", "g1", "c1")
	require.NoError(t, err)
	assert.NotContains(t, stderr, "audit event")
}
