package worker

import "github.com/spf13/cobra"

// NewWorkerCmd returns the parent "worker" command.
func NewWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run one-off maintenance workers",
	}
	// attach subcommands
	cmd.AddCommand(confirmCmd)
	cmd.AddCommand(replayCmd)

	return cmd
}
