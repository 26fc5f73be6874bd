package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arenadata/report-poster/internal/runner"
)

var errNotDelivered = errors.New("report not delivered by any reporter")

func newSendCmd(o *options) *cobra.Command {
	var message, errText string
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one report and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if message == "" && errText == "" {
				return errors.New("nothing to send: pass --message or --error")
			}
			r := runner.NewWithLogger(o.configPath, o.logger)
			if err := r.Load(); err != nil {
				return err
			}
			defer r.Stop()

			var cause error
			if errText != "" {
				cause = errors.New(errText)
			}
			if !r.Report(cmd.Context(), message, cause) {
				return errNotDelivered
			}
			fmt.Fprintln(cmd.OutOrStdout(), "delivered")
			return nil
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "report message")
	cmd.Flags().StringVarP(&errText, "error", "e", "", "error text attached to the report")
	return cmd
}
