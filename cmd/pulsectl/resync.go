package main

import (
	"github.com/spf13/cobra"

	"github.com/publicpulse/pulse/internal/syncer"
)

var (
	resyncLimit int
	resyncForce bool
)

var resyncCmd = &cobra.Command{
	Use:   "resync",
	Short: "Copy Primary Store documents into the Mirror",
	Long: `resync walks the Primary Store and inserts every document missing from
the Mirror.  Existing rows are left alone unless --force is given.
Bulk resync does not notify submitters.`,
	Args: cobra.NoArgs,
	RunE: runResync,
}

func init() {
	resyncCmd.Flags().IntVar(&resyncLimit, "limit", 0, "Stop after this many documents (0 = all)")
	resyncCmd.Flags().BoolVar(&resyncForce, "force", false, "Overwrite rows that already exist")
}

func runResync(cmd *cobra.Command, _ []string) error {
	svc, closeFn, err := openSync(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	stats, err := svc.Resync(cmd.Context(), syncer.ResyncOptions{Limit: resyncLimit, Force: resyncForce})
	if perr := printOutput(cmd.OutOrStdout(), stats); perr != nil {
		return perr
	}
	return err
}
