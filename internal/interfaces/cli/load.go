package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"fourdst.dev/plugin/bundle"
	"fourdst.dev/plugin/manager"
)

type loadFlags struct {
	Policy string
}

func newLoadCommand(root *rootFlags) *cobra.Command {
	flags := &loadFlags{}

	cmd := &cobra.Command{
		Use:   "load <bundle>",
		Short: "Verify a bundle and load its compatible plugins",
		Long: `Open a bundle end to end: verify its signature, screen its binaries
against this host, and load the survivors into the plugin manager. The
loaded plugins are listed and unloaded again before the command exits.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := parsePolicy(flags.Policy)
			if err != nil {
				return err
			}

			mgr := manager.New(manager.WithLogger(root.logger()))
			b, err := bundle.Open(cmd.Context(), args[0], policy,
				bundle.WithManager(mgr),
				bundle.WithLogger(root.logger()),
				bundle.WithKeyDir(root.KeysDir),
			)
			if err != nil {
				return err
			}
			defer b.Close()
			defer mgr.Shutdown()

			fmt.Fprintf(cmd.OutOrStdout(), "%s %s loaded (%s)\n",
				titleStyle.Render(b.Name()), b.Version(), verdict(b.Trusted(), "trusted", "untrusted"))
			for _, name := range b.PluginNames() {
				version, err := mgr.Version(name)
				if err != nil {
					version = "?"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "  %s %s %s\n", okStyle.Render("✓"), name, dimStyle.Render(version))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.Policy, "policy", "all", "Load policy: all (every plugin must be compatible) or any")

	return cmd
}

func parsePolicy(s string) (bundle.Policy, error) {
	switch s {
	case "all":
		return bundle.AllCompatible, nil
	case "any":
		return bundle.AnyCompatible, nil
	default:
		return 0, fmt.Errorf("unknown policy %q (want all or any)", s)
	}
}
