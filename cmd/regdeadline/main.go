package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/PetrosWatts/regdeadline/internal/core"
	"github.com/PetrosWatts/regdeadline/internal/di"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &di.Options{}

	root := &cobra.Command{
		Use:           "regdeadline",
		Short:         "Companies House filing deadline reminders with governed outbound mail",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "Path to config file")
	root.PersistentFlags().BoolVar(&opts.Verbose, "verbose", false, "Enable debug logging")
	root.PersistentFlags().BoolVar(&opts.DryRun, "dry-run", false, "Redirect every send to the safe test inbox")

	root.AddCommand(
		newRemindCommand(opts),
		newLeadsCommand(opts),
		newUnsubscribesCommand(opts),
		newStatusCommand(opts),
		newSuppressCommand(opts),
		newSubscribersCommand(opts),
	)
	return root
}

// invoke builds a container for one command and runs fn with its dependencies
func invoke(opts *di.Options, fn interface{}) error {
	container, err := di.BuildContainer(*opts)
	if err != nil {
		return fmt.Errorf("failed to build dependency container: %w", err)
	}
	return container.Invoke(fn)
}

// release stops the state store and flushes the logger
func release(store core.StateStore, logger *zap.Logger) {
	if stopper, ok := store.(interface{ Stop() }); ok {
		stopper.Stop()
	}
	_ = logger.Sync()
}
