// Package cli implements the fourdst command tree: host tooling for
// inspecting, verifying and loading plugin bundles and for listing the
// trusted key store.
package cli

import (
	"github.com/spf13/cobra"

	"fourdst.dev/plugin/internal/logging"
)

// rootFlags are shared by every subcommand.
type rootFlags struct {
	LogLevel string
	KeysDir  string
}

// NewRootCommand builds the fourdst command tree.
func NewRootCommand(version, commit, date string) *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:   "fourdst",
		Short: "fourdst - plugin bundle tooling",
		Long: `fourdst manages signed plugin bundles on this host: it inspects bundle
manifests, verifies their signatures against the local trusted key store,
screens plugin binaries for ABI compatibility, and loads the survivors
into the process plugin manager.`,
		Version: version + " (commit: " + commit + ", built: " + date + ")",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&flags.LogLevel, "log-level", "warn", "Log level (trace, debug, info, warn, error, silent)")
	rootCmd.PersistentFlags().StringVar(&flags.KeysDir, "keys-dir", "", "Trusted key directory (default $FOURDST_KEYS_DIR or ~/.config/fourdst/keys)")

	rootCmd.AddCommand(newInspectCommand(flags))
	rootCmd.AddCommand(newVerifyCommand(flags))
	rootCmd.AddCommand(newLoadCommand(flags))
	rootCmd.AddCommand(newKeysCommand(flags))
	rootCmd.AddCommand(newHostCommand())

	return rootCmd
}

func (f *rootFlags) logger() *logging.Logger {
	return logging.New(nil, f.LogLevel)
}
