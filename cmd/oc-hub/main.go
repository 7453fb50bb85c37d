package main

// @title           OC Hub API
// @version         1.0
// @description     Report intelligence pipeline. Ingests converted reports, extracts structured intelligence, audits it and serves the results.

// @host      localhost:8080
// @BasePath  /api/v1
// @schemes   http https

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sfdxb7/oc-hub/internal/config"
	"github.com/sfdxb7/oc-hub/internal/core/domain"
)

var version = "dev"

func main() {
	// Signals cancel the root context; running batches stop scheduling new documents
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "oc-hub",
		Short:        "Report intelligence pipeline",
		Version:      version,
		SilenceUsage: true,
		// Without a subcommand the process runs in RUN_MODE (default: all)
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath, os.Stdout)
			if err != nil {
				return err
			}
			return runMode(cmd.Context(), cfg, cfg.RunMode)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file (env: OC_HUB_CONFIG)")

	for _, mode := range []struct{ name, short string }{
		{config.RunModeAPI, "Run the HTTP API only"},
		{config.RunModeWorker, "Run the task worker and scheduler only"},
		{config.RunModeAll, "Run the HTTP API and the worker in one process"},
	} {
		root.AddCommand(&cobra.Command{
			Use:   mode.name,
			Short: mode.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig(configPath, os.Stdout)
				if err != nil {
					return err
				}
				return runMode(cmd.Context(), cfg, mode.name)
			},
		})
	}

	root.AddCommand(newIngestCmd(&configPath), newBatchCmd(&configPath))
	return root
}

func newIngestCmd(configPath *string) *cobra.Command {
	var force, audit bool

	cmd := &cobra.Command{
		Use:   "ingest <folder>",
		Short: "Ingest one source folder and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Logs go to stderr so stdout carries only the JSON result
			cfg, err := loadConfig(*configPath, os.Stderr)
			if err != nil {
				return err
			}
			folder, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("audit") {
				audit = cfg.Audit.Enabled
			}

			a, err := newApp(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.ingestion.Ingest(cmd.Context(), folder, domain.IngestOptions{ForceReprocess: force, Audit: audit})
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "reprocess even when the report already exists")
	cmd.Flags().BoolVar(&audit, "audit", false, "run the audit pass (default from audit.enabled)")
	return cmd
}

func newBatchCmd(configPath *string) *cobra.Command {
	var (
		concurrency int
		limit       int
		force       bool
		audit       bool
		filters     []string
	)

	cmd := &cobra.Command{
		Use:   "batch <root>",
		Short: "Ingest every source folder under root and print a summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if concurrency < 0 || limit < 0 {
				return errors.New("--concurrency and --limit must not be negative")
			}
			// Logs go to stderr so stdout carries only the JSON result
			cfg, err := loadConfig(*configPath, os.Stderr)
			if err != nil {
				return err
			}
			root, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("audit") {
				audit = cfg.Audit.Enabled
			}

			a, err := newApp(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			job, err := a.batches.RunLibrary(cmd.Context(), root, domain.BatchRequest{
				MaxConcurrency: concurrency,
				ForceReprocess: force,
				Audit:          audit,
				Filters:        filters,
				Limit:          limit,
			})
			if err != nil {
				return err
			}
			return printJSON(job.Summary())
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "documents in flight (default from batch.max_concurrency)")
	cmd.Flags().IntVar(&limit, "limit", 0, "process at most n folders")
	cmd.Flags().BoolVar(&force, "force", false, "reprocess reports that already exist")
	cmd.Flags().BoolVar(&audit, "audit", false, "run the audit pass (default from audit.enabled)")
	cmd.Flags().StringArrayVar(&filters, "filter", nil, "keep folders whose path contains this substring (repeatable)")
	return cmd
}

func loadConfig(path string, logOut io.Writer) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Version == "" || cfg.Version == "dev" {
		cfg.Version = version
	}
	slog.SetDefault(newLogger(cfg.LogLevel, logOut))
	return cfg, nil
}

func newLogger(level string, out io.Writer) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: lvl}))
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
