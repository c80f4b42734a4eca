package main

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"splicer/internal/api"
	"splicer/internal/deps"
	"splicer/internal/preflight"
)

// statusReport is the JSON form of splicer status.
type statusReport struct {
	Running      bool                `json:"running"`
	Health       *api.HealthResponse `json:"health,omitempty"`
	Preflight    []preflight.Result  `json:"preflight,omitempty"`
	Dependencies []deps.Status       `json:"dependencies"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, workflow and dependency status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			report := statusReport{Dependencies: preflight.CheckSystemDeps(cfg)}

			client, err := ctx.apiClient()
			if err == nil {
				var health api.HealthResponse
				_, err = client.do(cmd.Context(), http.MethodGet, "/healthz", nil, &health, http.StatusServiceUnavailable)
				if err == nil {
					report.Running = true
					report.Health = &health
				}
			}
			if err != nil && !errors.Is(err, errDaemonUnreachable) && client != nil {
				return err
			}
			if !report.Running {
				report.Preflight = preflight.RunAll(cmd.Context(), cfg)
			}

			if asJSON {
				return writeJSON(cmd, report)
			}
			out := cmd.OutOrStdout()
			for _, line := range renderStatus(report, shouldColorize(out)) {
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func renderStatus(r statusReport, colorize bool) []string {
	lines := renderSectionHeader("Daemon", colorize)
	if !r.Running {
		lines = append(lines, renderStatusLine("splicer", statusError, "Not running", colorize))
	} else {
		h := r.Health
		kind, msg := statusOK, "Running"
		if !h.Healthy {
			kind, msg = statusWarn, "Running (degraded)"
		}
		lines = append(lines, renderStatusLine("splicer", kind, msg, colorize))
		lines = append(lines, renderStatusLine("Workers", statusInfo,
			fmt.Sprintf("%d (%d active)", h.Workers, h.Active), colorize))
		if h.LastError != "" {
			lines = append(lines, renderStatusLine("Last error", statusWarn, h.LastError, colorize))
		}
		for _, s := range h.Stages {
			if s.Ready {
				lines = append(lines, renderStatusLine(s.Name, statusOK, "Ready", colorize))
			} else {
				lines = append(lines, renderStatusLine(s.Name, statusError, s.Detail, colorize))
			}
		}
	}

	if len(r.Preflight) > 0 {
		lines = append(lines, "")
		lines = append(lines, renderSectionHeader("Preflight", colorize)...)
		for _, c := range r.Preflight {
			kind := statusOK
			if !c.Passed {
				kind = statusError
			}
			lines = append(lines, renderStatusLine(c.Name, kind, c.Detail, colorize))
		}
	}

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Dependencies", colorize)...)
	lines = append(lines, dependencyLines(r.Dependencies, colorize)...)

	if r.Health != nil && len(r.Health.EpisodeStats) > 0 {
		statuses := make([]string, 0, len(r.Health.EpisodeStats))
		for s := range r.Health.EpisodeStats {
			statuses = append(statuses, s)
		}
		sort.Strings(statuses)
		rows := make([][]string, 0, len(statuses))
		for _, s := range statuses {
			rows = append(rows, []string{s, strconv.Itoa(r.Health.EpisodeStats[s])})
		}
		lines = append(lines, "")
		lines = append(lines, renderSectionHeader("Episodes", colorize)...)
		lines = append(lines, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
	}
	return lines
}
