package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"splicer/internal/config"
	"splicer/internal/logging"
	"splicer/internal/store"
	"splicer/internal/transcript"
)

func newTranscriptCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcript",
		Short: "Inspect stored transcripts",
	}
	cmd.AddCommand(newTranscriptLookupCommand(ctx))
	return cmd
}

func newTranscriptLookupCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "lookup <identity>",
		Short: "Find a transcript by media item id, storage key or file name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				svc := transcript.NewService(st, logging.NewNop())
				item, tr, err := svc.Lookup(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, tr)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Media item: %s (%s)\n", item.ID, item.StorageKey)
				fmt.Fprintf(out, "Provider:   %s\n", tr.Provider)
				fmt.Fprintf(out, "Words:      %d\n", len(tr.Words))
				if n := len(tr.Words); n > 0 {
					fmt.Fprintf(out, "Span:       %.2fs - %.2fs\n", tr.Words[0].Start, tr.Words[n-1].End)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full transcript as JSON")
	return cmd
}
