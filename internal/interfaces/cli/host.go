package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"fourdst.dev/plugin/bundle"
)

func newHostCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "host",
		Short: "Print this host's triplet and ABI signature",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			host, err := bundle.ProbeHost()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "triplet:       %s\n", host.Triplet)
			fmt.Fprintf(cmd.OutOrStdout(), "arch:          %s\n", host.Arch)
			fmt.Fprintf(cmd.OutOrStdout(), "os:            %s\n", host.OS)
			fmt.Fprintf(cmd.OutOrStdout(), "abi signature: %s\n", host.ABISignature)
			return nil
		},
	}
}
