package runner

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/google/uuid"

	"github.com/arenadata/report-poster/internal/config"
	"github.com/arenadata/report-poster/internal/hostinfo"
	"github.com/arenadata/report-poster/internal/report"
	"github.com/arenadata/report-poster/internal/reporter"
	"github.com/arenadata/report-poster/internal/storage/sqlite"
)

const DispatchIDKey = "dispatch.id"

type Journal interface {
	RecordAttempt(ctx context.Context, a sqlite.Attempt) (int64, error)
}

type Runner struct {
	cfgPath string
	log     *slog.Logger
	clk     Clock
	builder report.Builder

	applyMu sync.Mutex // serializes reloads from the watcher and SIGHUP

	mu        sync.RWMutex
	cfg       config.Config
	reporters []reporter.Reporter
	providers []hostinfo.Provider
	closers   []io.Closer
	journal   Journal
	store     *sqlite.Store // journal opened by the runner itself

	fixedProviders bool

	stopWatch chan struct{}
	sigCh     chan os.Signal
	stopOnce  sync.Once
}

func NewWithLogger(cfgPath string, logger *slog.Logger) *Runner {
	return NewWithDeps(cfgPath, logger, nil, nil, nil)
}

func New(cfgPath string) *Runner { return NewWithLogger(cfgPath, slog.Default()) }

// NewWithDeps injects the journal, the context providers and the clock.
// Nil arguments select the defaults derived from the config file.
func NewWithDeps(
	cfgPath string,
	logger *slog.Logger,
	journal Journal,
	providers []hostinfo.Provider,
	clk Clock,
) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = realClock{}
	}
	return &Runner{
		cfgPath:        cfgPath,
		log:            logger,
		clk:            clk,
		builder:        report.JSONBuilder{Now: clk.Now, Stack: true},
		journal:        journal,
		providers:      providers,
		fixedProviders: providers != nil,
	}
}

// Load reads the config file once and applies it.
func (r *Runner) Load() error {
	c, err := config.Load(r.cfgPath)
	if err != nil {
		return err
	}
	r.apply(c)
	return nil
}

// Start loads the config and keeps it current: on file change and on SIGHUP.
func (r *Runner) Start() error {
	if err := r.Load(); err != nil {
		return err
	}
	r.stopWatch = make(chan struct{})
	r.startConfigWatcher()
	r.startSignalHandler()
	return nil
}

// Stop ends background reloads and releases providers and the journal.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		if r.sigCh != nil {
			signal.Stop(r.sigCh)
			close(r.sigCh)
		}
		if r.stopWatch != nil {
			close(r.stopWatch)
		}

		r.mu.Lock()
		closers := r.closers
		store := r.store
		r.closers, r.store, r.journal = nil, nil, nil
		r.mu.Unlock()

		closeAll(closers)
		if store != nil {
			if err := store.Close(); err != nil {
				r.log.Warn("close journal", "err", err)
			}
		}
	})
}

func (r *Runner) Config() config.Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg
}

func (r *Runner) startConfigWatcher() {
	go func() {
		err := config.Watch(r.stopWatch, r.cfgPath, func(c config.Config) {
			r.apply(c)
			r.log.Info("config reloaded", "reporters", strings.Join(c.Reporters, ","))
		}, func(err error) {
			r.log.Warn("config reload", "err", err)
		})
		if err != nil {
			r.log.Error("config watch", "err", err)
		}
	}()
}

func (r *Runner) startSignalHandler() {
	const sigBuf = 2
	r.sigCh = make(chan os.Signal, sigBuf)
	signal.Notify(r.sigCh, syscall.SIGHUP)
	go func() {
		for range r.sigCh {
			if err := r.Load(); err != nil {
				r.log.Error("reload config", "err", err)
			}
		}
	}()
}

func (r *Runner) apply(c config.Config) {
	r.applyMu.Lock()
	defer r.applyMu.Unlock()

	reps := r.configureReporters(c)

	var providers []hostinfo.Provider
	var closers []io.Closer
	if !r.fixedProviders {
		providers, closers = r.buildProviders(c)
	}

	r.mu.Lock()
	if r.journal == nil && c.JournalPath != "" {
		if s, err := sqlite.OpenFile(c.JournalPath); err == nil {
			r.store = s
			r.journal = s
		} else {
			r.log.Warn("journal disabled", "path", c.JournalPath, "err", err)
		}
	} else if r.store != nil && c.JournalPath != r.cfg.JournalPath {
		r.log.Warn("journal_path change needs a restart", "current", r.cfg.JournalPath)
	}
	r.cfg = c
	r.reporters = reps
	var old []io.Closer
	if !r.fixedProviders {
		old = r.closers
		r.providers = providers
		r.closers = closers
	}
	r.mu.Unlock()

	closeAll(old)
}

// configureReporters keeps reporter instances across reloads so a reload is
// a reconfigure, not a replacement.
func (r *Runner) configureReporters(c config.Config) []reporter.Reporter {
	r.mu.RLock()
	existing := make(map[string]reporter.Reporter, len(r.reporters))
	for _, rep := range r.reporters {
		existing[rep.Name()] = rep
	}
	r.mu.RUnlock()

	out := make([]reporter.Reporter, 0, len(c.Reporters))
	seen := make(map[string]bool, len(c.Reporters))
	for _, name := range c.Reporters {
		if seen[name] {
			continue
		}
		seen[name] = true

		rep, ok := existing[name]
		if !ok {
			var err error
			rep, err = reporter.New(name, r.log, r.builder)
			if err != nil {
				r.log.Error("skip reporter", "err", err)
				continue
			}
		}
		if err := rep.Configure(c.Settings); err != nil {
			r.log.Warn("reporter is inert until reconfigured", "reporter", name)
		}
		out = append(out, rep)
	}
	return out
}

func (r *Runner) buildProviders(c config.Config) ([]hostinfo.Provider, []io.Closer) {
	providers := []hostinfo.Provider{hostinfo.FromApp(c.App)}
	var closers []io.Closer
	if c.Context.Host {
		providers = append(providers, hostinfo.Host{})
	}
	if c.Context.Systemd {
		if sd, err := hostinfo.NewSystemd(context.Background(), r.log); err == nil {
			providers = append(providers, sd)
			closers = append(closers, sd)
		} else {
			r.log.Warn("systemd dbus init failed", "err", err)
		}
	}
	if c.Context.Docker {
		if d, err := hostinfo.NewDocker(r.log); err == nil {
			providers = append(providers, d)
			closers = append(closers, d)
		} else {
			r.log.Warn("docker init failed", "err", err)
		}
	}
	return providers, closers
}

// Report sends one report through every configured reporter and returns
// true if at least one delivered it.
func (r *Runner) Report(ctx context.Context, message string, err error) bool {
	r.mu.RLock()
	reps := r.reporters
	providers := r.providers
	journal := r.journal
	r.mu.RUnlock()

	if len(reps) == 0 {
		r.log.WarnContext(ctx, "no reporters configured, report dropped")
		return false
	}

	dispatchID := uuid.NewString()
	env := hostinfo.Collect(ctx, providers...)
	env[DispatchIDKey] = dispatchID

	delivered := false
	for _, rep := range reps {
		res := rep.Send(ctx, env, message, err)
		if res.OK() {
			delivered = true
		}
		r.record(ctx, journal, dispatchID, rep.Name(), message, res)
	}
	return delivered
}

func (r *Runner) record(
	ctx context.Context,
	journal Journal,
	dispatchID, name, message string,
	res reporter.Result,
) {
	if journal == nil {
		return
	}
	a := sqlite.Attempt{
		DispatchID: dispatchID,
		Reporter:   name,
		Target:     res.Target,
		Kind:       res.Kind.String(),
		Status:     res.Status,
		Message:    message,
		CreatedAt:  r.clk.Now(),
	}
	if res.Err != nil {
		a.Error = res.Err.Error()
	}
	if _, err := journal.RecordAttempt(ctx, a); err != nil {
		r.log.WarnContext(ctx, "journal write failed", "dispatch", dispatchID, "err", err)
	}
}

func closeAll(closers []io.Closer) {
	for _, c := range closers {
		_ = c.Close()
	}
}
