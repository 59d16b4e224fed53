package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_FromDir(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "version: 1\ntimeout: 10m\nallow_fork: true\nmax_output: 4096\n")

	res, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, path, res.Path)
	assert.Equal(t, 1, res.Config.Version)
	assert.Equal(t, 10*time.Minute, res.Config.Timeout())
	assert.True(t, res.Config.AllowFork)
	assert.Equal(t, 4096, res.Config.MaxOutputBytes())
}

func TestLoad_FromSubdirectory(t *testing.T) {
	root := t.TempDir()
	path := writeConfig(t, root, "version: 2\nhistory:\n  dir: /var/tmp/runs\n  capacity: 3\n")

	sub := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	res, err := Load(sub)
	require.NoError(t, err)
	assert.Equal(t, path, res.Path)
	assert.Equal(t, 2, res.Config.Version)
	assert.Equal(t, "/var/tmp/runs", res.Config.HistoryDir())
	assert.Equal(t, 3, res.Config.HistoryCapacity())
}

func TestLoad_NoFile(t *testing.T) {
	dir := t.TempDir()

	res, err := Load(dir)
	require.NoError(t, err)
	// A .procrun above the temp dir would be picked up; tolerate that but
	// require defaults when none is found.
	if res.Path == "" {
		assert.Equal(t, time.Duration(0), res.Config.Timeout())
		assert.False(t, res.Config.AllowFork)
	}
}

func TestLoad_Malformed(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "timeout: [oops\n")

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestLoad_InvalidDuration(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "kill_grace: soon\n")

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kill_grace")
}

func TestDefaults(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, time.Duration(0), cfg.Timeout())
	assert.Equal(t, time.Duration(0), cfg.KillGrace())
	assert.Equal(t, 0, cfg.MaxOutputBytes())
	assert.Equal(t, DefaultHistoryCapacity, cfg.HistoryCapacity())
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel())
	assert.Equal(t, DefaultLogFormat, cfg.LogFormat())
	assert.NoError(t, cfg.Validate())
}

func TestNonPositiveValuesMeanNone(t *testing.T) {
	cfg := &Config{RawTimeout: "-5s", RawKillGrace: "0s", RawMaxOutput: -1}
	assert.Equal(t, time.Duration(0), cfg.Timeout())
	assert.Equal(t, time.Duration(0), cfg.KillGrace())
	assert.Equal(t, 0, cfg.MaxOutputBytes())
}

func TestValidate_LogFormat(t *testing.T) {
	cfg := &Config{Log: LogConfig{Format: "xml"}}
	assert.Error(t, cfg.Validate())
}

func TestLoad_SecondsAsNumbers(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "timeout: 30\nkill_grace: \"2.5\"\n")

	res, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, res.Config.Timeout())
	assert.Equal(t, 2500*time.Millisecond, res.Config.KillGrace())
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{raw: "", want: 0},
		{raw: "1m30s", want: 90 * time.Second},
		{raw: "2.5", want: 2500 * time.Millisecond},
		{raw: " 10 ", want: 10 * time.Second},
		{raw: "0", want: 0},
		{raw: "-3", want: 0},
		{raw: "1e30", want: time.Duration(math.MaxInt64)},
		{raw: "NaN", wantErr: true},
		{raw: "soon", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseDuration(tt.raw)
		if tt.wantErr {
			assert.Error(t, err, tt.raw)
			continue
		}
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}
