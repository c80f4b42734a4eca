package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"splicer/internal/api"
	"splicer/internal/config"
	"splicer/internal/media"
	"splicer/internal/store"
)

func newEpisodesCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "episodes",
		Aliases: []string{"episode"},
		Short:   "Inspect and assemble episodes",
	}
	cmd.AddCommand(newEpisodesListCommand(ctx))
	cmd.AddCommand(newEpisodesShowCommand(ctx))
	cmd.AddCommand(newEpisodesAssembleCommand(ctx))
	return cmd
}

func newEpisodesListCommand(ctx *commandContext) *cobra.Command {
	var (
		statuses []string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List episodes, optionally filtered by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := parseEpisodeStatuses(statuses)
			if err != nil {
				return err
			}
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				episodes, err := st.ListEpisodes(cmd.Context(), filter...)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, episodes)
				}
				if len(episodes) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No episodes")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderEpisodeTable(episodes))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (draft, queued, processing, processed, published, error)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func parseEpisodeStatuses(values []string) ([]media.EpisodeStatus, error) {
	known := map[media.EpisodeStatus]bool{
		media.StatusDraft:      true,
		media.StatusQueued:     true,
		media.StatusProcessing: true,
		media.StatusProcessed:  true,
		media.StatusPublished:  true,
		media.StatusError:      true,
	}
	out := make([]media.EpisodeStatus, 0, len(values))
	for _, v := range values {
		status := media.EpisodeStatus(strings.ToLower(strings.TrimSpace(v)))
		if !known[status] {
			return nil, fmt.Errorf("unknown episode status %q", v)
		}
		out = append(out, status)
	}
	return out, nil
}

func renderEpisodeTable(episodes []*media.Episode) string {
	rows := make([][]string, 0, len(episodes))
	for _, ep := range episodes {
		title := ep.Title
		if title == "" {
			title = "-"
		}
		rows = append(rows, []string{
			ep.ID,
			title,
			string(ep.Status),
			strconv.Itoa(len(ep.Commands)),
			strconv.Itoa(ep.Attempts),
			ep.UpdatedAt.Local().Format(time.DateTime),
		})
	}
	return renderTable(
		[]string{"ID", "Title", "Status", "Commands", "Attempts", "Updated"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	)
}

func newEpisodesShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <episode-id>",
		Short: "Print an episode as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				ep, err := st.GetEpisode(cmd.Context(), args[0])
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("episode %s not found", args[0])
				}
				if err != nil {
					return err
				}
				return writeJSON(cmd, ep)
			})
		},
	}
}

func newEpisodesAssembleCommand(ctx *commandContext) *cobra.Command {
	var (
		wait    bool
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "assemble <episode-id>",
		Short: "Submit an episode for assembly through the daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			id := args[0]
			var sub api.AssembleResponse
			if _, err := client.do(cmd.Context(), http.MethodPost, "/episodes/"+id+"/assemble", nil, &sub); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if sub.Queued {
				fmt.Fprintf(out, "Episode %s queued (job %s)\n", sub.EpisodeID, sub.JobHandle)
			} else {
				fmt.Fprintf(out, "Episode %s already %s (job %s)\n", sub.EpisodeID, sub.Status, sub.JobHandle)
			}
			if !wait {
				return nil
			}
			status, err := pollEpisodeStatus(cmd.Context(), client, id, timeout, time.Second)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Episode %s %s: %s\n", id, status.State, status.Message)
			for _, w := range status.Warnings {
				fmt.Fprintf(out, "  warning: %s\n", w)
			}
			if status.State == string(media.StatusError) {
				return fmt.Errorf("assembly failed: %s", status.Message)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for the episode to reach a terminal state")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Minute, "Maximum time to wait")
	return cmd
}

func isTerminalState(state string) bool {
	switch media.EpisodeStatus(state) {
	case media.StatusProcessed, media.StatusPublished, media.StatusError:
		return true
	}
	return false
}

// pollEpisodeStatus polls /status until the episode settles or timeout passes.
func pollEpisodeStatus(ctx context.Context, client *apiClient, id string, timeout, interval time.Duration) (api.StatusResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		var status api.StatusResponse
		if _, err := client.do(ctx, http.MethodGet, "/episodes/"+id+"/status", nil, &status); err != nil {
			return status, err
		}
		if isTerminalState(status.State) {
			return status, nil
		}
		select {
		case <-ctx.Done():
			return status, fmt.Errorf("episode %s still %s after %s", id, status.State, timeout)
		case <-ticker.C:
		}
	}
}
