package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"narrator/internal/api"
)

func newSessionCommand(ctx *commandContext) *cobra.Command {
	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "Submit and manage long text synthesis sessions",
	}
	sessionCmd.AddCommand(newSessionSubmitCommand(ctx))
	sessionCmd.AddCommand(newSessionStatusCommand(ctx))
	sessionCmd.AddCommand(newSessionResumeCommand(ctx))
	sessionCmd.AddCommand(newSessionMergeCommand(ctx))
	sessionCmd.AddCommand(newSessionUnfinishedCommand(ctx))
	return sessionCmd
}

func newSessionSubmitCommand(ctx *commandContext) *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "submit <file|->",
		Short: "Segment a text and dispatch background synthesis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(owner) == "" {
				return errors.New("--owner is required")
			}
			text, err := readTextArg(cmd, args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *api.Client) error {
				sub, err := client.SubmitSession(cmd.Context(), owner, text)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, sub)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Session %s submitted (%d segments)\n", sub.SessionID, sub.TotalSegments)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "Owner identifier")
	return cmd
}

func newSessionStatusCommand(ctx *commandContext) *cobra.Command {
	var total int
	cmd := &cobra.Command{
		Use:   "status <session-id>",
		Short: "Show which segments of a session are complete",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				progress, err := client.SessionStatus(cmd.Context(), args[0], total)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, progress)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Segments: %d/%d (%.0f%%)\n", len(progress.Completed), progress.Total, progress.CompletionRate*100)
				fmt.Fprintf(out, "Missing: %s\n", intList(progress.Missing))
				if !progress.DirExists {
					fmt.Fprintln(out, "Session directory not found")
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&total, "total", 0, "Expected segment count (0 infers from files)")
	return cmd
}

func newSessionResumeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <session-id>",
		Short: "Dispatch synthesis for a session's missing segments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				dispatched, err := client.ResumeSession(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, api.ResumeSessionResponse{Dispatched: dispatched})
				}
				if len(dispatched) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Nothing to resume")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Dispatched segments: %s\n", intList(dispatched))
				return nil
			})
		},
	}
}

func newSessionMergeCommand(ctx *commandContext) *cobra.Command {
	var total int
	var textFile string
	var kind string
	cmd := &cobra.Command{
		Use:   "merge <session-id>",
		Short: "Merge a finished session into one artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := api.MergeSessionRequest{TotalSegments: total, Kind: kind}
			if strings.TrimSpace(textFile) != "" {
				text, err := readTextArg(cmd, textFile)
				if err != nil {
					return err
				}
				req.OriginalText = text
			}
			return ctx.withClient(func(client *api.Client) error {
				result, err := client.MergeSession(cmd.Context(), args[0], req)
				var apiErr *api.Error
				if errors.As(err, &apiErr) && len(apiErr.Body.Missing) > 0 {
					out := cmd.ErrOrStderr()
					for _, idx := range apiErr.Body.Missing {
						if msg, ok := apiErr.Body.SegmentErrors[idx]; ok {
							fmt.Fprintf(out, "  segment %d: %s\n", idx, msg)
						}
					}
					return fmt.Errorf("session incomplete; missing segments: %s", intList(apiErr.Body.Missing))
				}
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, result)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Merged %d segments into %s (%s)\n", result.Segments, result.Filename, result.ArtifactURL)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&total, "total", 0, "Expected segment count (0 infers from files)")
	cmd.Flags().StringVar(&textFile, "text", "", "File holding the original text for the sidecar")
	cmd.Flags().StringVar(&kind, "kind", "", "Merge kind: article or clip")
	return cmd
}

func newSessionUnfinishedCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "unfinished <owner-id>",
		Short: "List an owner's partially synthesized sessions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				sessions, err := client.Unfinished(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, api.UnfinishedResponse{Sessions: sessions})
				}
				if len(sessions) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No unfinished sessions")
					return nil
				}
				rows := make([][]string, 0, len(sessions))
				for _, s := range sessions {
					rows = append(rows, []string{
						s.SessionID,
						fmt.Sprintf("%d/%d", len(s.Progress.Completed), s.Progress.Total),
						s.ModifiedAt.Local().Format("2006-01-02 15:04"),
					})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Session", "Segments", "Modified"}, rows, []columnAlignment{alignLeft, alignRight, alignLeft}))
				return nil
			})
		},
	}
}
