package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/publicpulse/pulse/internal/app"
	"github.com/publicpulse/pulse/internal/config"
	"github.com/publicpulse/pulse/internal/syncer"
)

var (
	outputFmt string
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "pulsectl",
	Short: "Operator CLI for the Pulse complaint core",
	Long: `pulsectl runs maintenance actions against the Primary Store and the
MySQL Mirror using the same configuration as the web process
(conf/global.yaml plus PULSE_ environment overrides).

Commands that write go through the synchronizer, so locking, tombstones,
and notification rules are the same as for live traffic.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "json", "Output format: json, yaml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log to stderr at debug level")

	rootCmd.AddCommand(resyncCmd)
	rootCmd.AddCommand(pullCmd)
}

// syncService is what the commands need from the synchronizer.
type syncService interface {
	Resync(ctx context.Context, opts syncer.ResyncOptions) (syncer.ResyncStats, error)
	Pull(ctx context.Context, id string) (syncer.Outcome, error)
}

// openSync builds the synchronizer from configuration.  Tests replace it.
var openSync = func(ctx context.Context) (syncService, func(), error) {
	log := zap.NewNop().Sugar()
	if verbose {
		dev, err := zap.NewDevelopment()
		if err != nil {
			return nil, nil, err
		}
		log = dev.Sugar()
	}
	zap.ReplaceGlobals(log.Desugar())

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return a.Sync, func() { _ = a.Close() }, nil
}

// printOutput writes v in the selected format.
func printOutput(w io.Writer, v any) error {
	switch outputFmt {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		return fmt.Errorf("unknown output format %q", outputFmt)
	}
}
