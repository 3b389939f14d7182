package main

import (
	"github.com/spf13/cobra"
)

var pullCmd = &cobra.Command{
	Use:   "pull <id>",
	Short: "Copy one document into the Mirror, clearing any tombstone",
	Args:  cobra.ExactArgs(1),
	RunE:  runPull,
}

func runPull(cmd *cobra.Command, args []string) error {
	svc, closeFn, err := openSync(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	out, err := svc.Pull(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return printOutput(cmd.OutOrStdout(), out)
}
