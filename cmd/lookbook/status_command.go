package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status and queue counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := ctx.apiClient().Status(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, status)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			for _, line := range renderSectionHeader("Lookbook Daemon", colorize) {
				fmt.Fprintln(out, line)
			}

			kind := statusOK
			if status.Status != "ok" {
				kind = statusWarn
			}
			message := status.Status
			if status.Version != "" {
				message = fmt.Sprintf("%s (version %s)", status.Status, status.Version)
			}
			fmt.Fprintln(out, renderStatusLine("Daemon", kind, message, colorize))

			if len(status.QueueCounts) > 0 {
				statuses := make([]string, 0, len(status.QueueCounts))
				for name := range status.QueueCounts {
					statuses = append(statuses, name)
				}
				sort.Strings(statuses)
				for _, name := range statuses {
					fmt.Fprintln(out, renderStatusLine("Queue "+name, statusInfo,
						fmt.Sprintf("%d", status.QueueCounts[name]), colorize))
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of text")
	return cmd
}
