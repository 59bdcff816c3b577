package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var version = "dev"

// SetVersion sets the string printed by the version command.
func SetVersion(v string) {
	version = v
}

// NewRootCmd builds the pixeldesk command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pixeldesk",
		Short:         "Resize, rotate, filter, watermark and re-encode images",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRenderCmd(), newFormatsCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pixeldesk %s\n", version)
		},
	}
}
