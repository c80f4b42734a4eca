package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"splicer/internal/config"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the splicer configuration",
	}
	cmd.AddCommand(newConfigInitCommand(), newConfigValidateCommand())
	return cmd
}

func newConfigInitCommand() *cobra.Command {
	var (
		dest      string
		overwrite bool
	)
	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a commented sample config.toml",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			target, err := resolveConfigTarget(dest)
			if err != nil {
				return err
			}
			if !overwrite {
				_, statErr := os.Stat(target)
				switch {
				case statErr == nil:
					return fmt.Errorf("%s already exists; pass --overwrite to replace it", target)
				case !errors.Is(statErr, fs.ErrNotExist):
					return fmt.Errorf("stat %s: %w", target, statErr)
				}
			}
			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("write sample config: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Next: set providers.openai_api_key or export OPENAI_API_KEY, then run splicer serve.")
			return nil
		},
	}
	cmd.Flags().StringVarP(&dest, "path", "p", "", "Where to write the file (default: user config dir)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing file")
	return cmd
}

func resolveConfigTarget(dest string) (string, error) {
	if dest = strings.TrimSpace(dest); dest == "" {
		p, err := config.DefaultConfigPath()
		if err != nil {
			return "", fmt.Errorf("default config path: %w", err)
		}
		return p, nil
	}
	p, err := config.ExpandPath(dest)
	if err != nil {
		return "", fmt.Errorf("expand %s: %w", dest, err)
	}
	return p, nil
}

func newConfigValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "validate",
		Short:       "Load, validate and print the effective paths",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, resolved, exists, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("prepare directories: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path: %s\n", resolved)
			if !exists {
				fmt.Fprintln(out, "(file not found, built-in defaults in effect)")
			}
			printEffectivePaths(out, cfg)
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}

func printEffectivePaths(out io.Writer, cfg *config.Config) {
	bind := cfg.Paths.APIBind
	if bind == "" {
		bind = "(api disabled)"
	}
	queue := cfg.Queue.RedisAddr
	if queue == "" {
		queue = "(transcription queue disabled)"
	}
	fmt.Fprintf(out, "  database: %s\n", cfg.DatabasePath())
	fmt.Fprintf(out, "  media:    %s\n", cfg.MediaDir())
	fmt.Fprintf(out, "  staging:  %s\n", cfg.Paths.StagingDir)
	fmt.Fprintf(out, "  logs:     %s\n", cfg.Paths.LogDir)
	fmt.Fprintf(out, "  api:      %s\n", bind)
	fmt.Fprintf(out, "  redis:    %s\n", queue)
}
