package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"narrator/internal/api"
	"narrator/internal/queue"
)

func newWordCommand(ctx *commandContext) *cobra.Command {
	wordCmd := &cobra.Command{
		Use:   "word",
		Short: "Manage per-owner word clips",
	}
	wordCmd.AddCommand(newWordAddCommand(ctx))
	wordCmd.AddCommand(newWordStatusCommand(ctx))
	wordCmd.AddCommand(newWordRequeueCommand(ctx))
	return wordCmd
}

func newWordAddCommand(ctx *commandContext) *cobra.Command {
	var owner, category string
	cmd := &cobra.Command{
		Use:   "add <word>",
		Short: "Queue a word clip for an owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(owner) == "" {
				return errors.New("--owner is required")
			}
			if _, err := queue.ParseCategory(category); err != nil {
				return err
			}
			return ctx.withClient(func(client *api.Client) error {
				accepted, err := client.SubmitWord(cmd.Context(), api.SubmitWordRequest{
					OwnerID:  owner,
					Word:     args[0],
					Category: category,
				})
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, api.AcceptedResponse{Accepted: accepted})
				}
				if accepted {
					fmt.Fprintln(cmd.OutOrStdout(), "Word queued")
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "Word clip already available")
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "Owner identifier")
	cmd.Flags().StringVar(&category, "category", "", "Clip category (listening, speaking, reading, writing)")
	return cmd
}

func newWordStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <owner-id>",
		Short: "Show an owner's word clip records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				records, err := client.WordAudio(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, api.WordAudioResponse{Records: records})
				}
				if len(records) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No word clips")
					return nil
				}
				rows := make([][]string, 0, len(records))
				for _, rec := range records {
					rows = append(rows, []string{rec.Category, rec.Word, wordState(rec), fmt.Sprint(rec.Attempts), rec.LastError})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"Category", "Word", "State", "Attempts", "Last error"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
}

func wordState(rec api.WordAudio) string {
	switch {
	case rec.AudioGenerated:
		return "ready"
	case rec.Failed:
		return "failed"
	default:
		return "pending"
	}
}

func newWordRequeueCommand(ctx *commandContext) *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "requeue <owner-id>",
		Short: "Requeue an owner's failed clip in one category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := queue.ParseCategory(category); err != nil {
				return err
			}
			return ctx.withClient(func(client *api.Client) error {
				task, err := client.RequeueWord(cmd.Context(), args[0], category)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, task)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Requeued %q as task %s\n", task.Word, task.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "Clip category")
	return cmd
}
