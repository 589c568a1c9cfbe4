package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"narrator/internal/api"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, pipeline and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				status, err := client.Status(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, status)
				}
				renderDaemonStatus(cmd.OutOrStdout(), status, shouldColorize(cmd.OutOrStdout()))
				return nil
			})
		},
	}
}

func renderDaemonStatus(out io.Writer, status api.DaemonStatus, colorize bool) {
	printSectionHeader(out, "Daemon", colorize)
	fmt.Fprintln(out, renderStatusLine("Running", passFail(status.Running), fmt.Sprintf("pid %d", status.PID), colorize))
	fmt.Fprintln(out, renderStatusLine("Queue database", statusInfo, status.QueueDBPath, colorize))
	fmt.Fprintln(out, renderStatusLine("Word queue", passFail(status.Workflow.Running),
		fmt.Sprintf("processed %d, exhausted %d", status.Workflow.Processed, status.Workflow.Exhausted), colorize))
	if status.Workflow.LastError != "" {
		fmt.Fprintln(out, renderStatusLine("Last error", statusWarn, status.Workflow.LastError, colorize))
	}
	pool := status.Pipeline.Pool
	fmt.Fprintln(out, renderStatusLine("Synthesis pool", passFail(pool.Running),
		fmt.Sprintf("%d workers, %d active, %d queued", pool.Workers, pool.Active, pool.Queued), colorize))
	fmt.Fprintln(out)

	if len(status.Preflight) > 0 {
		printSectionHeader(out, "Preflight", colorize)
		for _, result := range status.Preflight {
			fmt.Fprintln(out, renderStatusLine(result.Name, passFail(result.Passed), result.Detail, colorize))
		}
		fmt.Fprintln(out)
	}

	printSectionHeader(out, "Queue", colorize)
	rows := buildQueueStatusRows(status.Workflow.QueueStats)
	if len(rows) == 0 {
		fmt.Fprintln(out, "Queue is empty")
	} else {
		fmt.Fprint(out, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
	}
	fmt.Fprintf(out, "Active sessions: %d, exhausted owners: %d\n", status.Health.Sessions, status.Health.Exhausted)
}

func buildQueueStatusRows(stats map[string]int) [][]string {
	rows := make([][]string, 0, len(stats))
	for _, key := range api.SortedStats(stats) {
		if stats[key] > 0 {
			rows = append(rows, []string{key, fmt.Sprint(stats[key])})
		}
	}
	return rows
}

