// Package reporter holds the interchangeable strategies that deliver a
// crash report to a sink.
package reporter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/arenadata/report-poster/internal/config"
	"github.com/arenadata/report-poster/internal/report"
)

// Reporter delivers one report per Send. Implementations never panic and
// never block past their configured timeout.
type Reporter interface {
	Name() string
	// Configure applies settings. On failure the reporter logs the problem,
	// becomes inert and returns the reason.
	Configure(settings config.Settings) error
	Send(ctx context.Context, env report.Env, message string, err error) Result
}

type Kind int

const (
	KindOK Kind = iota
	KindNotConfigured
	KindBuild
	KindTransport
	KindStatus
	KindTooLarge
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindNotConfigured:
		return "not_configured"
	case KindBuild:
		return "build"
	case KindTransport:
		return "transport"
	case KindStatus:
		return "status"
	case KindTooLarge:
		return "too_large"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Result is the outcome of one Send.
type Result struct {
	Kind   Kind
	Target string // endpoint or sink the report went to
	Status int    // HTTP status, 0 when no response was received
	Body   string // response body, bounded
	ID     string // sink-assigned event id, if any
	Err    error
}

func (r Result) OK() bool { return r.Kind == KindOK }

type ConfigErrorKind int

const (
	ConfigMissing ConfigErrorKind = iota + 1
	ConfigInvalid
)

type ConfigError struct {
	Kind ConfigErrorKind
	Key  string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Kind == ConfigMissing {
		return fmt.Sprintf("the setting %s is mandatory", e.Key)
	}
	return fmt.Sprintf("the setting %s is not valid: %v", e.Key, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

var (
	ErrResponseTooLarge = errors.New("response body exceeds limit")
	ErrUnknownReporter  = errors.New("unknown reporter")
)

// New returns the strategy registered under name.
func New(name string, logger *slog.Logger, builder report.Builder) (Reporter, error) {
	switch name {
	case PostName:
		return NewPostReporter(logger, builder), nil
	case SentryName:
		return NewSentryReporter(logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownReporter, name)
	}
}
