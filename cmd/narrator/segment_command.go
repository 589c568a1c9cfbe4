package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"narrator/internal/segment"
)

func newSegmentCommand(ctx *commandContext) *cobra.Command {
	segmentCmd := &cobra.Command{
		Use:   "segment",
		Short: "Inspect how text is segmented",
	}

	previewCmd := &cobra.Command{
		Use:   "preview <file|->",
		Short: "Show the segment plan for a text file without synthesizing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readTextArg(cmd, args[0])
			if err != nil {
				return err
			}
			policy := segment.PolicyFromConfig(ctx.configValue())
			previews := segment.Previews(policy.Plan(text))
			if ctx.JSONMode() {
				return writeJSON(cmd, previews)
			}
			rows := make([][]string, 0, len(previews))
			for _, p := range previews {
				rows = append(rows, []string{fmt.Sprint(p.Index), fmt.Sprint(p.Length), p.Preview})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d segment(s)\n", len(previews))
			fmt.Fprint(out, renderTable([]string{"#", "Chars", "Preview"}, rows, []columnAlignment{alignRight, alignRight, alignLeft}))
			return nil
		},
	}
	segmentCmd.AddCommand(previewCmd)
	return segmentCmd
}

// readTextArg reads a text file, or stdin when arg is "-".
func readTextArg(cmd *cobra.Command, arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	var data []byte
	var err error
	switch arg {
	case "":
		return "", errors.New("text file is required")
	case "-":
		data, err = io.ReadAll(cmd.InOrStdin())
	default:
		data, err = os.ReadFile(arg)
	}
	if err != nil {
		return "", fmt.Errorf("read text: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", errors.New("text is empty")
	}
	return text, nil
}
