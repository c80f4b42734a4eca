package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"splicer/internal/command"
	"splicer/internal/config"
	"splicer/internal/logging"
	"splicer/internal/media"
	"splicer/internal/store"
	"splicer/internal/transcript"
)

func newCommandsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "commands",
		Short: "Detect and inspect spoken edit commands",
	}
	cmd.AddCommand(newCommandsDetectCommand(ctx))
	cmd.AddCommand(newCommandsListCommand(ctx))
	return cmd
}

func newCommandsDetectCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "detect <media-item-id>",
		Short: "Scan a media item's transcript for cut and insert markers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				item, err := st.GetMediaItem(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				logger := logging.NewNop()
				svc := command.NewService(st, transcript.NewService(st, logger),
					command.NewDetector(command.OptionsFromConfig(cfg)), logger)
				cmds, err := svc.Detect(cmd.Context(), item)
				if err != nil {
					return err
				}
				return printCommands(cmd, cmds, asJSON)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newCommandsListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list <media-item-id>",
		Short: "List commands stored for a media item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				cmds, err := st.CommandsForMediaItem(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printCommands(cmd, cmds, asJSON)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func printCommands(cmd *cobra.Command, cmds []media.Command, asJSON bool) error {
	if asJSON {
		if cmds == nil {
			cmds = []media.Command{}
		}
		return writeJSON(cmd, cmds)
	}
	if len(cmds) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No commands")
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderCommandTable(cmds))
	return nil
}

func renderCommandTable(cmds []media.Command) string {
	rows := make([][]string, 0, len(cmds))
	for _, c := range cmds {
		prompt := c.PromptText
		if c.OverrideText != "" {
			prompt = c.OverrideText
		}
		rows = append(rows, []string{
			c.ID,
			string(c.Kind),
			fmt.Sprintf("%.2f", c.Start),
			fmt.Sprintf("%.2f", c.End),
			string(c.Review),
			truncate(strings.TrimSpace(prompt), 48),
		})
	}
	return renderTable(
		[]string{"ID", "Kind", "Start", "End", "Review", "Prompt"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
	)
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-3]) + "..."
}
