package main

import (
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/arenadata/report-poster/internal/storage/sqlite"
)

func newHistoryCmd(o *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent delivery attempts from the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if o.cfg.JournalPath == "" {
				return errors.New("journal_path is not set in the config")
			}
			s, err := sqlite.OpenFile(o.cfg.JournalPath)
			if err != nil {
				return fmt.Errorf("open journal: %w", err)
			}
			defer s.Close()

			rows, err := s.RecentAttempts(cmd.Context(), limit)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tDISPATCH\tREPORTER\tKIND\tSTATUS\tTARGET\tMESSAGE\tERROR")
			for _, a := range rows {
				status := "-"
				if a.Status != 0 {
					status = strconv.Itoa(a.Status)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					a.CreatedAt.Local().Format(time.RFC3339),
					a.DispatchID, a.Reporter, a.Kind, status,
					dash(a.Target), a.Message, dash(a.Error))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of attempts to show")
	return cmd
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
