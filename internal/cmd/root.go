package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/turbolytics/historian/internal/cmd/harvest"
)

func NewRootCommand() *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "historian",
		Short: "Archives Athena query history to S3",
		Long: `historian incrementally copies query execution history for every
Athena work group into partitioned, gzip compressed JSON objects and
remembers where it stopped so the next run only archives what is new.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(harvest.NewCommand())
	cmd.AddCommand(newConfigCommand())

	return cmd
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := NewRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
