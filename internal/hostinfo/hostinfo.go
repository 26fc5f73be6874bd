// Package hostinfo collects the ambient context attached to every report.
package hostinfo

import (
	"context"
	"os"
	"runtime"
	"strconv"

	"github.com/arenadata/report-poster/internal/config"
	"github.com/arenadata/report-poster/internal/report"
)

// Provider returns context for one report. Providers never fail: a source
// that cannot be queried contributes nothing.
type Provider interface {
	Collect(ctx context.Context) report.Env
}

// Collect merges the output of every provider, later providers winning.
func Collect(ctx context.Context, providers ...Provider) report.Env {
	env := report.Env{}
	for _, p := range providers {
		if p == nil {
			continue
		}
		env = env.Merge(p.Collect(ctx))
	}
	return env
}

type Static report.Env

func (s Static) Collect(context.Context) report.Env {
	return report.Env{}.Merge(report.Env(s))
}

// FromApp maps the config app section, skipping empty values.
func FromApp(a config.App) Static {
	s := Static{}
	if a.Name != "" {
		s["app.name"] = a.Name
	}
	if a.Version != "" {
		s["app.version"] = a.Version
	}
	if a.Environment != "" {
		s["app.environment"] = a.Environment
	}
	return s
}

type Host struct{}

func (Host) Collect(context.Context) report.Env {
	env := report.Env{
		"host.os":     runtime.GOOS,
		"host.arch":   runtime.GOARCH,
		"runtime.go":  runtime.Version(),
		"process.pid": strconv.Itoa(os.Getpid()),
	}
	if name, err := os.Hostname(); err == nil {
		env["host.name"] = name
	}
	return env
}
