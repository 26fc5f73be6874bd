package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// endlessInput feeds lines into a pipe until the read side is closed.
func endlessInput(t *testing.T) io.Reader {
	t.Helper()
	pr, pw := io.Pipe()
	go func() {
		for {
			if _, err := pw.Write([]byte("line\n")); err != nil {
				return
			}
		}
	}()
	t.Cleanup(func() { _ = pr.Close() })
	return pr
}

func TestPumpLines_EOF(t *testing.T) {
	var got []string
	sent, failed, err := pumpLines(context.Background(), strings.NewReader("a\n\n  \nb\nfail\n"), func(line string) bool {
		got = append(got, line)
		return line != "fail"
	})
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.Equal(t, 1, failed)
	assert.Equal(t, []string{"a", "b", "fail"}, got)
}

func TestPumpLines_ScannerError(t *testing.T) {
	long := strings.Repeat("x", maxLine+1) + "\n"
	_, _, err := pumpLines(context.Background(), strings.NewReader(long), func(string) bool { return true })
	require.Error(t, err)
}

func TestPumpLines_CancelMidStreamReturns(t *testing.T) {
	for i := 0; i < 50; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		in := endlessInput(t)
		done := make(chan error, 1)
		go func() {
			_, _, err := pumpLines(ctx, in, func(string) bool {
				cancel()
				return true
			})
			done <- err
		}()

		select {
		case err := <-done:
			require.ErrorIs(t, err, context.Canceled, "run %d", i)
		case <-time.After(2 * time.Second):
			t.Fatalf("pumpLines did not return after cancel (run %d)", i)
		}
		cancel()
	}
}

func TestPipeCmd_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var once sync.Once
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		once.Do(cancel)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	cfg := writeConfig(t, dir, baseConfig(srv.URL, filepath.Join(dir, "journal.db")))

	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(endlessInput(t))
	cmd.SetArgs([]string{"pipe", "--config", cfg, "--env-file", ""})

	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
		assert.NotContains(t, out.String(), "sent=")
		assert.Contains(t, errOut.String(), "pipe interrupted")
	case <-time.After(5 * time.Second):
		t.Fatalf("pipe did not stop after cancel")
	}
}

func TestPipeCmd_ReportsScannerError(t *testing.T) {
	srv := newCollector(t, http.StatusOK)
	dir := t.TempDir()
	cfg := writeConfig(t, dir, baseConfig(srv.URL, filepath.Join(dir, "journal.db")))

	_, _, err := executeCommand(strings.Repeat("y", maxLine+1), "pipe", "--config", cfg, "--env-file", "")
	require.Error(t, err)
	assert.False(t, errors.Is(err, context.Canceled))
}
