package detector

import (
	"context"
	"errors"
	"io"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/parking.report/internal/monitoring"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestCommandSourceCleanExit(t *testing.T) {
	requireShell(t)
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.SetLogger(nil) })

	src, err := StartCommand(context.Background(), Options{}, "sh", "-c",
		`echo '{"seq":1,"detections":[]}'; echo 'warming up' >&2; echo '{"seq":2,"detections":[]}'`)
	require.NoError(t, err)
	defer src.Close()

	for _, want := range []uint64{1, 2} {
		f, err := src.Next(context.Background())
		require.NoError(t, err)
		assert.Equal(t, want, f.Seq)
	}

	_, err = src.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestCommandSourceFailedExit(t *testing.T) {
	requireShell(t)
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.SetLogger(nil) })

	src, err := StartCommand(context.Background(), Options{}, "sh", "-c", `echo '{"seq":1}'; exit 3`)
	require.NoError(t, err)
	defer src.Close()

	_, err = src.Next(context.Background())
	require.NoError(t, err)

	_, err = src.Next(context.Background())
	var de *DetectorError
	require.True(t, errors.As(err, &de), "expected DetectorError, got %v", err)
	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 3, exitErr.ExitCode())
}

func TestCommandSourceMissingBinary(t *testing.T) {
	_, err := StartCommand(context.Background(), Options{}, "/nonexistent/detector-binary")
	var de *DetectorError
	assert.ErrorAs(t, err, &de)
}

func TestCommandSourceCloseKillsProcess(t *testing.T) {
	requireShell(t)
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.SetLogger(nil) })

	src, err := StartCommand(context.Background(), Options{}, "sh", "-c", `exec sleep 30`)
	require.NoError(t, err)
	assert.NoError(t, src.Close())
}
