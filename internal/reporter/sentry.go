package reporter

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/arenadata/report-poster/internal/config"
	"github.com/arenadata/report-poster/internal/report"
)

const (
	SentryName = "sentry"

	KeySentryDSN          = "reporter.sentry.dsn"
	KeySentryEnvironment  = "reporter.sentry.environment"
	KeySentryRelease      = "reporter.sentry.release"
	KeySentryFlushTimeout = "reporter.sentry.flush_timeout"

	defaultFlushTimeout = 2 * time.Second
)

var (
	errEventDropped = errors.New("sentry dropped the event")
	errFlushTimeout = errors.New("sentry flush timed out")
)

// SentryReporter ships reports as Sentry events. Each reporter owns its
// client; the process-wide sentry hub is never touched.
type SentryReporter struct {
	log       *slog.Logger
	transport sentry.Transport

	mu           sync.RWMutex
	client       *sentry.Client
	target       string
	flushTimeout time.Duration
}

var _ Reporter = (*SentryReporter)(nil)

type SentryOption func(*SentryReporter)

// WithSentryTransport replaces the SDK's HTTP transport.
func WithSentryTransport(t sentry.Transport) SentryOption {
	return func(s *SentryReporter) { s.transport = t }
}

func NewSentryReporter(logger *slog.Logger, opts ...SentryOption) *SentryReporter {
	if logger == nil {
		logger = slog.Default()
	}
	s := &SentryReporter{log: logger.With("reporter", SentryName)}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *SentryReporter) Name() string { return SentryName }

func (s *SentryReporter) Configure(settings config.Settings) error {
	dsn, ok := settings.Lookup(KeySentryDSN)
	if !ok {
		s.reset()
		cfgErr := &ConfigError{Kind: ConfigMissing, Key: KeySentryDSN}
		s.log.Error(cfgErr.Error())
		return cfgErr
	}
	if _, dsnErr := sentry.NewDsn(dsn); dsnErr != nil {
		s.reset()
		cfgErr := &ConfigError{Kind: ConfigInvalid, Key: KeySentryDSN, Err: dsnErr}
		s.log.Error(cfgErr.Error(), "err", dsnErr)
		return cfgErr
	}

	flush, fErr := settings.Duration(KeySentryFlushTimeout, defaultFlushTimeout)
	if fErr != nil {
		s.log.Warn("ignoring invalid setting, using default", "err", fErr)
	}

	client, cErr := sentry.NewClient(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      settings.String(KeySentryEnvironment, ""),
		Release:          settings.String(KeySentryRelease, ""),
		SampleRate:       1,
		AttachStacktrace: true,
		Transport:        s.transport,
	})
	if cErr != nil {
		s.reset()
		cfgErr := &ConfigError{Kind: ConfigInvalid, Key: KeySentryDSN, Err: cErr}
		s.log.Error(cfgErr.Error(), "err", cErr)
		return cfgErr
	}

	s.mu.Lock()
	old, oldFlush := s.client, s.flushTimeout
	s.client = client
	s.target = redactDSN(dsn)
	s.flushTimeout = flush
	s.mu.Unlock()
	flushOld(old, oldFlush)

	s.log.Info("reporter configured", "target", s.target)
	return nil
}

func (s *SentryReporter) reset() {
	s.mu.Lock()
	old, oldFlush := s.client, s.flushTimeout
	s.client = nil
	s.target = ""
	s.mu.Unlock()
	flushOld(old, oldFlush)
}

// flushOld drains events still queued on a replaced client.
func flushOld(c *sentry.Client, timeout time.Duration) {
	if c != nil {
		c.Flush(timeout)
	}
}

func (s *SentryReporter) Send(ctx context.Context, env report.Env, message string, err error) Result {
	s.mu.RLock()
	client, target, flush := s.client, s.target, s.flushTimeout
	s.mu.RUnlock()

	if client == nil {
		return Result{Kind: KindNotConfigured, Err: errNotConfigured}
	}

	hub := sentry.NewHub(client, sentry.NewScope())
	id := hub.CaptureEvent(buildEvent(env, message, err))
	if id == nil {
		s.log.WarnContext(ctx, "report not delivered", "target", target, "err", errEventDropped)
		return Result{Kind: KindTransport, Target: target, Err: errEventDropped}
	}
	if !client.Flush(flush) {
		s.log.WarnContext(ctx, "report not delivered", "target", target, "err", errFlushTimeout)
		return Result{Kind: KindTransport, Target: target, ID: string(*id), Err: errFlushTimeout}
	}
	s.log.InfoContext(ctx, "report sent", "target", target, "event_id", string(*id))
	return Result{Kind: KindOK, Target: target, ID: string(*id)}
}

func buildEvent(env report.Env, message string, err error) *sentry.Event {
	event := sentry.NewEvent()
	event.Message = message
	event.Level = sentry.LevelInfo

	if info := report.Describe(err); info != nil {
		event.Level = sentry.LevelError
		// sentry lists the innermost cause first
		for i := len(info.Chain) - 1; i >= 0; i-- {
			event.Exception = append(event.Exception, sentry.Exception{Value: info.Chain[i]})
		}
		event.Exception = append(event.Exception, sentry.Exception{Type: info.Type, Value: info.Message})
	}

	if len(env) > 0 {
		ctxData := make(sentry.Context, len(env))
		for k, v := range env {
			ctxData[k] = v
		}
		event.Contexts = map[string]sentry.Context{"report": ctxData}
	}
	return event
}

// redactDSN drops the public key so it never reaches logs or the journal.
func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return ""
	}
	u.User = nil
	return u.String()
}
