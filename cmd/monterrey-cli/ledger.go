package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Klingon-tech/monterrey/config"
	"github.com/Klingon-tech/monterrey/internal/ledger"
	"github.com/Klingon-tech/monterrey/internal/node"
)

func newBalanceCmd(v *viper.Viper) *cobra.Command {
	var account string
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show an account's ledger balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withNode(v, func(n *node.Node) error {
				bal, err := n.Ledger().Balance(account)
				if err != nil {
					return err
				}
				fmt.Printf("Account: %s\n", account)
				fmt.Printf("Balance: %s (%s units)\n", ledger.FormatUnits(bal), bal)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "Account identifier")
	cobra.CheckErr(cmd.MarkFlagRequired("account"))
	return cmd
}

func newCreditCmd(v *viper.Viper) *cobra.Command {
	var account, amount string
	cmd := &cobra.Command{
		Use:   "credit",
		Short: "Credit an account",
		Long:  "Credit an account by an amount given in ledger base units (18 decimals).",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			amt, err := config.ParseAmount(amount)
			if err != nil {
				return err
			}
			return withNode(v, func(n *node.Node) error {
				if err := n.Ledger().Credit(account, amt); err != nil {
					return err
				}
				bal, err := n.Ledger().Balance(account)
				if err != nil {
					return err
				}
				fmt.Printf("Credited %s to %s; balance %s\n", ledger.FormatUnits(amt), account, ledger.FormatUnits(bal))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "Account identifier")
	cmd.Flags().StringVar(&amount, "amount", "", "Amount in base units")
	cobra.CheckErr(cmd.MarkFlagRequired("account"))
	cobra.CheckErr(cmd.MarkFlagRequired("amount"))
	return cmd
}

func newDebitCmd(v *viper.Viper) *cobra.Command {
	var account, amount string
	cmd := &cobra.Command{
		Use:   "debit",
		Short: "Debit an account",
		Long: "Debit an account by an amount given in ledger base units (18 decimals). " +
			"The debit is refused when it exceeds the balance.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			amt, err := config.ParseAmount(amount)
			if err != nil {
				return err
			}
			return withNode(v, func(n *node.Node) error {
				ok, err := n.Ledger().Debit(account, amt)
				if err != nil {
					return err
				}
				bal, err := n.Ledger().Balance(account)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("insufficient balance: %s has %s, debit of %s refused",
						account, ledger.FormatUnits(bal), ledger.FormatUnits(amt))
				}
				fmt.Printf("Debited %s from %s; balance %s\n", ledger.FormatUnits(amt), account, ledger.FormatUnits(bal))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "Account identifier")
	cmd.Flags().StringVar(&amount, "amount", "", "Amount in base units")
	cobra.CheckErr(cmd.MarkFlagRequired("account"))
	cobra.CheckErr(cmd.MarkFlagRequired("amount"))
	return cmd
}
