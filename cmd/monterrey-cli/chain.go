package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Klingon-tech/monterrey/internal/node"
)

func newTickCmd(v *viper.Viper) *cobra.Command {
	var catchUp bool
	cmd := &cobra.Command{
		Use:   "tick",
		Short: "Reconcile deposits once",
		Long: "Reconcile the next block against the chain node. With --catch-up, " +
			"reconcile until the cursor reaches the chain head.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return withNode(v, func(n *node.Node) error {
				if err := n.Connect(ctx); err != nil {
					return err
				}
				if catchUp {
					blocks, err := n.CatchUp(ctx)
					if err != nil {
						return err
					}
					fmt.Printf("Reconciled %d blocks\n", blocks)
				} else {
					worked, err := n.Tick(ctx)
					if err != nil {
						return err
					}
					if !worked {
						fmt.Println("Up to date")
					}
				}
				return printCursor(n)
			})
		},
	}
	cmd.Flags().BoolVar(&catchUp, "catch-up", false, "Reconcile up to the chain head")
	return cmd
}

func newStatusCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show ledger status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withNode(v, func(n *node.Node) error {
				cfg := n.Config()
				fmt.Printf("Network:  %s\n", cfg.Network)
				fmt.Printf("Backend:  %s\n", cfg.Backend.Type)
				accounts, err := n.Wallets().Accounts()
				if err != nil {
					return err
				}
				ws, err := n.Wallets().Addresses()
				if err != nil {
					return err
				}
				fmt.Printf("Accounts: %d\n", len(accounts))
				fmt.Printf("Wallets:  %d\n", len(ws))
				for _, t := range cfg.Tokens {
					fmt.Printf("Token:    %s %s (decimals %d, rate %s)\n", t.Symbol, t.Address.Hex(), t.Decimals, t.ConversionRate)
				}
				return printCursor(n)
			})
		},
	}
}

func printCursor(n *node.Node) error {
	cursor, ok, err := n.Cursor()
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("Cursor:   not initialized")
		return nil
	}
	fmt.Printf("Cursor:   %d\n", cursor)
	return nil
}
