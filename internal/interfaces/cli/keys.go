package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"fourdst.dev/plugin/internal/keystore"
)

func newKeysCommand(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List the trusted public keys installed on this host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := keystore.New(root.KeysDir)
			if err != nil {
				return err
			}
			keys, err := store.Keys()
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", labelStyle.Render("key store:"), store.Dir())
			if len(keys) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("no trusted keys installed"))
				return nil
			}

			for _, key := range keys {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s %d bit\n", key.Fingerprint(), key.Type(), key.Bits())
				fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("  "+key.Path()))
			}
			return nil
		},
	}
}
