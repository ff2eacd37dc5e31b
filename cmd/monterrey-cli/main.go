// monterrey-cli manages deposit wallets and ledger balances.
//
// It operates directly on the configured storage backend, so it must not
// be pointed at a file backend that a running monterreyd is using.
package main

import (
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

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
	// Keep command output readable; --log-level overrides.
	v.SetDefault(config.KeyLogLevel, "warn")

	root := &cobra.Command{
		Use:           "monterrey-cli",
		Short:         "Manage deposit wallets and ledger balances",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	config.RegisterFlags(root.PersistentFlags())
	cobra.CheckErr(config.BindFlags(root.PersistentFlags(), v))

	root.AddCommand(
		newInitCmd(v),
		newSaltCmd(),
		newGenerateCmd(v),
		newAccountsCmd(v),
		newWalletsCmd(v),
		newOwnerCmd(v),
		newBalanceCmd(v),
		newCreditCmd(v),
		newDebitCmd(v),
		newExportCmd(v),
		newVerifyExportCmd(v),
		newKeysCmd(v),
		newTickCmd(v),
		newStatusCmd(v),
	)
	return root
}

// withNode loads the configuration, opens the node and runs fn.
func withNode(v *viper.Viper, fn func(n *node.Node) error) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	n, err := node.New(cfg)
	if err != nil {
		return err
	}
	defer n.Stop()
	return fn(n)
}

func newInitCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := v.GetString(config.KeyConfigFile)
			if path == "" {
				cfg := config.Default()
				cfg.DataDir = v.GetString(config.KeyDataDir)
				path = cfg.ConfigFile()
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := config.WriteDefaultConfig(path); err != nil {
				return err
			}
			fmt.Printf("Config written to %s\n", path)
			fmt.Println("Set a salt before starting monterreyd (see: monterrey-cli salt).")
			return nil
		},
	}
}

// ── Password helper ─────────────────────────────────────────────────────

func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr) // newline after hidden input
	if err != nil {
		return nil, err
	}
	return password, nil
}
