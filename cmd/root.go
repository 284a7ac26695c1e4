package cmd

import (
	"fmt"
	"os"

	"github.com/jmehdipour/dbrelay/cmd/worker"
	"github.com/spf13/cobra"
)

var (
	cfgPath string
	rootCmd = &cobra.Command{
		Use:   "dbrelay",
		Short: "Relay Postgres notifications to the message bus",
	}
)

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config file (defaults are embedded)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(newNotifyCmd())
	rootCmd.AddCommand(tailCmd)
	rootCmd.AddCommand(worker.NewWorkerCmd())
}
