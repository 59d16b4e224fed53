package procrun_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deixis/procrun"
)

func TestMain(m *testing.M) {
	procrun.Init()
	os.Exit(m.Run())
}

func TestRun_Echo(t *testing.T) {
	res, err := procrun.Run(context.Background(), "echo hello", false, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "hello\n", string(res.Stdout))
	assert.Empty(t, res.Stderr)
}

func TestRun_False(t *testing.T) {
	res, err := procrun.Run(context.Background(), "false", false, -1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExitCode)
	assert.Empty(t, res.Stdout)
	assert.Empty(t, res.Stderr)
}

func TestRun_SleepTimeout(t *testing.T) {
	start := time.Now()
	res, err := procrun.Run(context.Background(), "sleep 5", false, 1)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 3*time.Second)
	assert.True(t, res.TimedOut)
	assert.NotEqual(t, 0, res.ExitCode)
	assert.NotEqual(t, procrun.NoExitCode, res.ExitCode)
}

func TestRun_StringTimeout(t *testing.T) {
	res, err := procrun.Run(context.Background(), "sleep 5", true, "0.2")
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
}

func TestRun_UnparsableTimeoutWaits(t *testing.T) {
	start := time.Now()
	res, err := procrun.Run(context.Background(), "sleep 0.2", false, "later")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
	assert.False(t, res.TimedOut)
	assert.Equal(t, 0, res.ExitCode)
}

func TestRun_MissingBinary(t *testing.T) {
	res, err := procrun.Run(context.Background(), "nonexistent-binary-xyz", false, nil)
	assert.Nil(t, res)
	var spawnErr *procrun.SpawnError
	assert.True(t, errors.As(err, &spawnErr), "got %v", err)
}

func TestRun_Quoting(t *testing.T) {
	res, err := procrun.Run(context.Background(), `printf '%s\n' 'a b' c`, false, nil)
	require.NoError(t, err)
	assert.Equal(t, "a b\nc\n", string(res.Stdout))
}

func TestRun_BadQuoting(t *testing.T) {
	_, err := procrun.Run(context.Background(), `echo "half`, false, nil)
	var parseErr *procrun.ParseError
	assert.True(t, errors.As(err, &parseErr), "got %v", err)
}
