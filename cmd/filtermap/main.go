// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The filtermap Authors

// Command filtermap reads records from a source, filters and transforms them
// with a rule and writes the kept records to standard output.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/joamaki/filtermap/internal/config"
	"github.com/joamaki/filtermap/internal/logger"
	"github.com/joamaki/filtermap/internal/pipeline"
)

const (
	ExitSuccess      = 0
	ExitConfigError  = 1
	ExitRuntimeError = 2
)

// Set via ldflags.
var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	go func() {
		// Restore the default signal behaviour after the first signal so
		// that a second one terminates the process.
		<-ctx.Done()
		cancel()
	}()

	cmd := newRootCmd()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		cancel()
		if errors.Is(err, config.ErrInvalidConfig) {
			os.Exit(ExitConfigError)
		}
		os.Exit(ExitRuntimeError)
	}
}

func newRootCmd() *cobra.Command {
	var opts config.LoadOptions

	root := &cobra.Command{
		Use:   "filtermap",
		Short: "Filter and transform record streams",
		Long: `filtermap reads records from a file, standard input, an HTTP response
or a Redis stream, applies a rule to each record and writes the records the
rule keeps to standard output, one per line.

Rules:
  expr      expr-lang expression over 'line' and 'json'; nil or false drops
  jsonpath  gjson path; records without it are dropped
  regexp    non-matching records are dropped; first group is emitted

Examples:
  FILTERMAP_RULE_KIND=jsonpath FILTERMAP_RULE_PATH=user.name filtermap run < events.jsonl
  filtermap run --config pipeline.yml
  filtermap check --config pipeline.yml`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "", "YAML configuration file")
	root.PersistentFlags().StringVar(&opts.EnvFile, "env-file", "", ".env file to load (default ./.env if present)")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run the configured pipeline",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runPipeline(cmd, opts)
			},
		},
		&cobra.Command{
			Use:   "check",
			Short: "Validate the configuration and compile the rule",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runCheck(cmd, opts)
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "filtermap %s\n", version)
			},
		},
	)
	return root
}

func runCheck(cmd *cobra.Command, opts config.LoadOptions) error {
	cfg, err := config.Load(opts)
	if err != nil {
		return fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}
	r, err := cfg.Validate()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "configuration ok: %s source, %s rule\n", cfg.Source.Kind, r.Kind())
	return nil
}

func runPipeline(cmd *cobra.Command, opts config.LoadOptions) error {
	cfg, err := config.Load(opts)
	if err != nil {
		return fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}
	r, err := cfg.Validate()
	if err != nil {
		return err
	}

	log := logger.New(cfg.Log, cmd.ErrOrStderr())
	_, err = pipeline.New(cfg, r, log).Run(cmd.Context(), cmd.OutOrStdout())
	return err
}
