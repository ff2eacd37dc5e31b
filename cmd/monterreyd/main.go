// Monterrey deposit ledger daemon.
//
// Usage:
//
//	monterreyd [--config=...] [--rpc=...]  Run the daemon
//	monterreyd --help                      Show help
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Klingon-tech/monterrey/config"
	"github.com/Klingon-tech/monterrey/internal/node"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.NewViper()
	cmd := &cobra.Command{
		Use:   "monterreyd",
		Short: "Credit on-chain deposits to account balances",
		Long: "monterreyd watches the deposit wallets of every account, reconciles " +
			"balance changes block by block and credits them to the ledger.",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
	config.RegisterFlags(cmd.Flags())
	cobra.CheckErr(config.BindFlags(cmd.Flags(), v))
	return cmd
}

// run starts a node and blocks until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config) error {
	n, err := node.New(cfg)
	if err != nil {
		return err
	}
	if err := n.Start(ctx); err != nil {
		n.Stop()
		return err
	}

	<-ctx.Done()
	n.Stop()
	return nil
}
