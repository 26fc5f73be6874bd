package reporter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arenadata/report-poster/internal/config"
	"github.com/arenadata/report-poster/internal/report"
)

const testDSN = "https://public@sentry.example.com/42"

type fakeTransport struct {
	mu      sync.Mutex
	events  []*sentry.Event
	flushOK bool
	flushes int
}

func (f *fakeTransport) Configure(sentry.ClientOptions) {}

func (f *fakeTransport) SendEvent(e *sentry.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
}

func (f *fakeTransport) Flush(time.Duration) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
	return f.flushOK
}

func (f *fakeTransport) flushCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flushes
}

func (f *fakeTransport) sent() []*sentry.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*sentry.Event(nil), f.events...)
}

func TestSentryReporter_Unconfigured(t *testing.T) {
	tr := &fakeTransport{flushOK: true}
	s := NewSentryReporter(nil, WithSentryTransport(tr))

	res := s.Send(context.Background(), nil, "boom", errors.New("kaput"))
	assert.Equal(t, KindNotConfigured, res.Kind)
	assert.Empty(t, tr.sent())
}

func TestSentryReporter_ConfigureErrors(t *testing.T) {
	logger, logs := newTestLogger()
	s := NewSentryReporter(logger)

	var cfgErr *ConfigError
	require.ErrorAs(t, s.Configure(config.Settings{}), &cfgErr)
	assert.Equal(t, ConfigMissing, cfgErr.Kind)

	require.ErrorAs(t, s.Configure(config.Settings{KeySentryDSN: "not a dsn"}), &cfgErr)
	assert.Equal(t, ConfigInvalid, cfgErr.Kind)
	assert.Equal(t, 2, strings.Count(logs.String(), "level=ERROR"))
}

func TestSentryReporter_SendError(t *testing.T) {
	tr := &fakeTransport{flushOK: true}
	s := NewSentryReporter(nil, WithSentryTransport(tr))
	require.NoError(t, s.Configure(config.Settings{
		KeySentryDSN:         testDSN,
		KeySentryEnvironment: "staging",
	}))

	cause := errors.New("disk full")
	res := s.Send(context.Background(), report.Env{"app.name": "billing"}, "boom", fmt.Errorf("save: %w", cause))

	require.True(t, res.OK(), "err: %v", res.Err)
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, "https://sentry.example.com/42", res.Target)

	events := tr.sent()
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, "boom", ev.Message)
	assert.Equal(t, sentry.LevelError, ev.Level)
	assert.Equal(t, "staging", ev.Environment)
	require.Len(t, ev.Exception, 2)
	assert.Contains(t, ev.Exception[0].Value, "disk full")
	assert.Equal(t, "save: disk full", ev.Exception[1].Value)
	assert.Equal(t, "billing", ev.Contexts["report"]["app.name"])
}

func TestSentryReporter_SendMessage(t *testing.T) {
	tr := &fakeTransport{flushOK: true}
	s := NewSentryReporter(nil, WithSentryTransport(tr))
	require.NoError(t, s.Configure(config.Settings{KeySentryDSN: testDSN}))

	require.True(t, s.Send(context.Background(), nil, "heads up", nil).OK())

	events := tr.sent()
	require.Len(t, events, 1)
	assert.Equal(t, sentry.LevelInfo, events[0].Level)
	assert.Empty(t, events[0].Exception)
}

func TestSentryReporter_FlushTimeout(t *testing.T) {
	tr := &fakeTransport{flushOK: false}
	s := NewSentryReporter(nil, WithSentryTransport(tr))
	require.NoError(t, s.Configure(config.Settings{KeySentryDSN: testDSN, KeySentryFlushTimeout: "10ms"}))

	res := s.Send(context.Background(), nil, "boom", errors.New("kaput"))
	assert.Equal(t, KindTransport, res.Kind)
	assert.ErrorIs(t, res.Err, errFlushTimeout)
}

func TestRedactDSN(t *testing.T) {
	assert.Equal(t, "https://sentry.example.com/42", redactDSN(testDSN))
}

func TestSentryReporter_ReconfigureFlushesPreviousClient(t *testing.T) {
	tr := &fakeTransport{flushOK: true}
	s := NewSentryReporter(nil, WithSentryTransport(tr))

	require.NoError(t, s.Configure(config.Settings{KeySentryDSN: testDSN}))
	assert.Equal(t, 0, tr.flushCount())

	require.NoError(t, s.Configure(config.Settings{KeySentryDSN: testDSN, KeySentryRelease: "1.2.3"}))
	assert.Equal(t, 1, tr.flushCount(), "replaced client must be flushed")

	require.Error(t, s.Configure(config.Settings{}))
	assert.Equal(t, 2, tr.flushCount(), "client dropped by a failed configure must be flushed")

	require.Error(t, s.Configure(config.Settings{}))
	assert.Equal(t, 2, tr.flushCount())
}
