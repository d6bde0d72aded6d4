package daemon

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempPIDFile(t *testing.T) *PIDFile {
	t.Helper()
	return NewPIDFile(filepath.Join(t.TempDir(), "opchat-serve.pid"))
}

func TestPIDFile_RoundTrip(t *testing.T) {
	pf := tempPIDFile(t)

	require.NoError(t, pf.WritePID(12345))
	pid, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, 12345, pid)

	// Write with no argument records our own PID.
	require.NoError(t, pf.Write())
	pid, err = pf.Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestPIDFile_ReadErrors(t *testing.T) {
	pf := tempPIDFile(t)
	_, err := pf.Read()
	assert.Error(t, err, "missing file")

	require.NoError(t, os.WriteFile(pf.Path, []byte("not-a-number\n"), 0o644))
	_, err = pf.Read()
	assert.ErrorContains(t, err, "invalid PID file content")
}

func TestPIDFile_Remove(t *testing.T) {
	pf := tempPIDFile(t)
	require.NoError(t, pf.WritePID(1))

	require.NoError(t, pf.Remove())
	_, err := os.Stat(pf.Path)
	assert.True(t, os.IsNotExist(err))

	assert.Error(t, pf.Remove(), "second remove has nothing to delete")
}

func TestPIDFile_IsRunning(t *testing.T) {
	pf := tempPIDFile(t)

	pid, running := pf.IsRunning()
	assert.Equal(t, 0, pid)
	assert.False(t, running, "no file means not running")

	require.NoError(t, pf.Write())
	pid, running = pf.IsRunning()
	assert.True(t, running)
	assert.Equal(t, os.Getpid(), pid)

	// A PID far above anything plausible reads as dead.
	require.NoError(t, pf.WritePID(999999))
	pid, running = pf.IsRunning()
	assert.Equal(t, 999999, pid)
	assert.False(t, running)
}

func TestPIDFile_Signal(t *testing.T) {
	pf := tempPIDFile(t)

	err := pf.Signal(syscall.Signal(0))
	assert.ErrorContains(t, err, "read PID file")

	require.NoError(t, pf.Write())
	// Signal 0 probes the process without delivering anything.
	assert.NoError(t, pf.Signal(syscall.Signal(0)))
}
