package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"fourdst.dev/plugin/bundle"
)

type inspectFlags struct {
	Interactive bool
}

func newInspectCommand(root *rootFlags) *cobra.Command {
	flags := &inspectFlags{}

	cmd := &cobra.Command{
		Use:   "inspect <bundle>",
		Short: "Show a bundle's manifest, signature status and ABI screening",
		Long: `Unpack a bundle to a scratch directory and report its metadata, whether
its signature verifies against the trusted key store, and which of its
binaries are compatible with this host. Nothing is loaded.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := bundle.Inspect(cmd.Context(), args[0],
				bundle.WithLogger(root.logger()),
				bundle.WithKeyDir(root.KeysDir),
			)
			if err != nil {
				return err
			}

			if flags.Interactive {
				return runInspectTUI(report)
			}

			fmt.Fprint(cmd.OutOrStdout(), renderReport(report))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&flags.Interactive, "interactive", "i", false, "Browse the bundle in an interactive view")

	return cmd
}

func renderReport(report *bundle.Report) string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render(report.Name) + " " + dimStyle.Render(report.Version) + "\n")
	writeField(&sb, "Author", report.Author)
	writeField(&sb, "Comment", report.Comment)
	writeField(&sb, "Bundled on", report.BundledOn)
	writeField(&sb, "Signed", verdict(report.Signed, "yes", "no"))
	writeField(&sb, "Trusted", verdict(report.Trusted, "yes", "no"))
	writeField(&sb, "Host", report.Host.Triplet+" ("+report.Host.ABISignature+")")
	sb.WriteString("\n")

	for _, plugin := range report.Plugins {
		sb.WriteString(fmt.Sprintf("%s %s\n", verdict(plugin.Compatible, "✓", "✗"), titleStyle.Render(plugin.Name)))
		for _, bin := range plugin.Binaries {
			marker := verdict(bin.Compatible, "✓", "✗")
			sb.WriteString(fmt.Sprintf("    %s %s  %s\n", marker, bin.Triplet, dimStyle.Render(bin.ABISignature)))
			sb.WriteString(dimStyle.Render("      "+bin.Path) + "\n")
		}
	}

	return sb.String()
}

func writeField(sb *strings.Builder, label, value string) {
	sb.WriteString(labelStyle.Render(fmt.Sprintf("%-12s", label)) + value + "\n")
}
