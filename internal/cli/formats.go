package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/dunamismax/pixeldesk/internal/pipeline"
	"github.com/spf13/cobra"
)

func newFormatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List output formats and whether this build can encode them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			enc := pipeline.DefaultEncoders()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "FORMAT\tMIME\tLOSSY\tAVAILABLE")
			for _, f := range pipeline.Formats {
				_, ok := enc[f]
				fmt.Fprintf(w, "%s\t%s\t%t\t%t\n", f, f.MIME(), f.Lossy(), ok)
			}
			fmt.Fprintf(w, "\nruntime: %s\n", pipeline.RuntimeName)
			return w.Flush()
		},
	}
}
