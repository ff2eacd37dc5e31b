package main

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Klingon-tech/monterrey/internal/node"
	"github.com/Klingon-tech/monterrey/internal/wallet"
)

func newSaltCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "salt",
		Short: "Generate a new derivation salt",
		Long: "Generate a random 24-word salt. Every deposit address is derived " +
			"from it: store it as carefully as a wallet seed.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			salt, err := wallet.GenerateSalt()
			if err != nil {
				return err
			}
			fmt.Println("Salt (write this down!):")
			fmt.Printf("  %s\n", salt)
			return nil
		},
	}
}

func newGenerateCmd(v *viper.Viper) *cobra.Command {
	var (
		account string
		index   int64
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Allocate a deposit wallet for an account",
		Long: "Allocate the next deposit wallet for an account. With --index, " +
			"derive the wallet at that index without allocating it.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withNode(v, func(n *node.Node) error {
				var (
					w   *wallet.Wallet
					err error
				)
				if index >= 0 {
					w, err = n.Wallets().GenerateAt(account, uint64(index))
				} else {
					w, err = n.Wallets().Generate(account)
				}
				if err != nil {
					return err
				}
				fmt.Printf("Account: %s\n", w.Account)
				fmt.Printf("Index:   %d\n", w.Index)
				fmt.Printf("Address: %s\n", w.Address.Hex())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "Account identifier")
	cmd.Flags().Int64Var(&index, "index", -1, "Derive at this index without allocating")
	cobra.CheckErr(cmd.MarkFlagRequired("account"))
	return cmd
}

func newAccountsCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "List accounts with allocated wallets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withNode(v, func(n *node.Node) error {
				accounts, err := n.Wallets().Accounts()
				if err != nil {
					return err
				}
				if len(accounts) == 0 {
					fmt.Println("No accounts.")
					return nil
				}
				fmt.Printf("%-32s  %8s\n", "ACCOUNT", "WALLETS")
				for _, a := range accounts {
					count, err := n.Wallets().Count(a)
					if err != nil {
						return err
					}
					fmt.Printf("%-32s  %8d\n", a, count)
				}
				return nil
			})
		},
	}
}

func newWalletsCmd(v *viper.Viper) *cobra.Command {
	var account string
	cmd := &cobra.Command{
		Use:   "wallets",
		Short: "List the allocated wallets of an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withNode(v, func(n *node.Node) error {
				ws, err := n.Wallets().Wallets(account)
				if err != nil {
					return err
				}
				if len(ws) == 0 {
					fmt.Printf("No wallets for %s.\n", account)
					return nil
				}
				for _, w := range ws {
					fmt.Printf("  [%d] %s\n", w.Index, w.Address.Hex())
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "Account identifier")
	cobra.CheckErr(cmd.MarkFlagRequired("account"))
	return cmd
}

func newOwnerCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "owner <address>",
		Short: "Find the account owning a deposit address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !common.IsHexAddress(args[0]) {
				return fmt.Errorf("invalid address %q", args[0])
			}
			addr := common.HexToAddress(args[0])
			return withNode(v, func(n *node.Node) error {
				account, ok := n.Wallets().Owner(addr)
				if !ok {
					return fmt.Errorf("%s is not an allocated deposit address", addr.Hex())
				}
				fmt.Println(account)
				return nil
			})
		},
	}
}

func newExportCmd(v *viper.Viper) *cobra.Command {
	var (
		account string
		index   uint64
		out     string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a deposit wallet's private key to the keystore",
		Long: "Export the private key of an allocated deposit wallet, encrypted " +
			"with a password, for sweeping funds with external tools.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withNode(v, func(n *node.Node) error {
				count, err := n.Wallets().Count(account)
				if err != nil {
					return err
				}
				if index >= count {
					return fmt.Errorf("%s has %d wallets; index %d is not allocated", account, count, index)
				}
				w, err := n.Wallets().GenerateAt(account, index)
				if err != nil {
					return err
				}

				password, err := readPassword("Enter password: ")
				if err != nil {
					return fmt.Errorf("read password: %w", err)
				}
				defer clear(password)
				confirm, err := readPassword("Confirm password: ")
				if err != nil {
					return fmt.Errorf("read password: %w", err)
				}
				defer clear(confirm)
				if !bytes.Equal(password, confirm) {
					return fmt.Errorf("passwords do not match")
				}
				if len(password) == 0 {
					return fmt.Errorf("password must not be empty")
				}

				ks := n.Keystore()
				if out != "" {
					if ks, err = wallet.NewKeystore(out); err != nil {
						return err
					}
				}
				path, err := ks.Export(w, password, wallet.DefaultKDFParams())
				if err != nil {
					return err
				}
				fmt.Printf("Exported %s to %s\n", w.Address.Hex(), path)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "Account identifier")
	cmd.Flags().Uint64Var(&index, "index", 0, "Wallet index")
	cmd.Flags().StringVar(&out, "out", "", "Directory to write the key file to (default <datadir>/<network>/keystore)")
	cobra.CheckErr(cmd.MarkFlagRequired("account"))
	return cmd
}

func newVerifyExportCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "verify-export <file>",
		Short: "Decrypt an exported key file and check it against the salt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withNode(v, func(n *node.Node) error {
				password, err := readPassword("Enter password: ")
				if err != nil {
					return fmt.Errorf("read password: %w", err)
				}
				defer clear(password)

				imported, err := n.Keystore().Import(args[0], password)
				if err != nil {
					return err
				}
				derived, err := n.Wallets().GenerateAt(imported.Account, imported.Index)
				if err != nil {
					return err
				}
				if derived.Address != imported.Address {
					return fmt.Errorf("key file %s was not derived from the configured salt", imported.Address.Hex())
				}
				fmt.Printf("OK: %s is %s[%d]\n", imported.Address.Hex(), imported.Account, imported.Index)
				return nil
			})
		},
	}
}

func newKeysCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List exported key files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withNode(v, func(n *node.Node) error {
				addrs, err := n.Keystore().List()
				if err != nil {
					return err
				}
				if len(addrs) == 0 {
					fmt.Println("No exported keys.")
					return nil
				}
				for _, addr := range addrs {
					owner, ok := n.Wallets().Owner(addr)
					if !ok {
						owner = "?"
					}
					fmt.Printf("  %s  %s\n", addr.Hex(), owner)
				}
				return nil
			})
		},
	}
}
