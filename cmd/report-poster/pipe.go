package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	sd "github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"github.com/arenadata/report-poster/internal/runner"
)

const maxLine = 1 << 20

func newPipeCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "pipe",
		Short: "Send every stdin line as a report until EOF or a signal",
		Long: strings.TrimSpace(`
Runs as a long-lived process: the config file is watched and reloaded on
change or SIGHUP, and each non-empty line read from stdin becomes one
report. Readiness is signalled to systemd once the config is loaded.
`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			r := runner.NewWithLogger(o.configPath, o.logger)
			if err := r.Start(); err != nil {
				return err
			}
			defer r.Stop()
			_, _ = sd.SdNotify(false, sd.SdNotifyReady)

			sent, failed, err := pumpLines(ctx, cmd.InOrStdin(), func(line string) bool {
				return r.Report(ctx, line, nil)
			})
			if ctx.Err() != nil {
				o.logger.Info("pipe interrupted", "sent", sent, "failed", failed)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent=%d failed=%d\n", sent, failed)
			return err
		},
	}
}

// pumpLines hands every non-empty line of in to send until EOF or until ctx
// is done. The reader goroutine may stay blocked on in after a cancel; it
// exits once in returns.
func pumpLines(ctx context.Context, in io.Reader, send func(string) bool) (sent, failed int, err error) {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 0, 64*1024), maxLine)
		defer close(lines)
		defer func() { scanErr <- sc.Err() }()
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return sent, failed, ctx.Err()
		case line, ok := <-lines:
			if !ok {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return sent, failed, ctxErr
				}
				return sent, failed, <-scanErr
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if send(line) {
				sent++
			} else {
				failed++
			}
		}
	}
}
