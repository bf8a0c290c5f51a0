package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"fourdst.dev/plugin/bundle"
)

func newVerifyCommand(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <bundle>",
		Short: "Verify a bundle's signature against the trusted key store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := bundle.Inspect(cmd.Context(), args[0],
				bundle.WithLogger(root.logger()),
				bundle.WithKeyDir(root.KeysDir),
			)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "signed:  %s\n", verdict(report.Signed, "yes", "no"))
			fmt.Fprintf(cmd.OutOrStdout(), "trusted: %s\n", verdict(report.Trusted, "yes", "no"))

			if !report.Trusted {
				return fmt.Errorf("bundle %s is not trusted", args[0])
			}
			return nil
		},
	}
}
