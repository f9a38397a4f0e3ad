// Package cli assembles the swotsim command tree.
package cli

import (
	"github.com/spf13/cobra"
)

// RootOptions holds global flags shared by all commands.
type RootOptions struct {
	Verbose bool
}

// NewRootCommand creates the root command for the simulator CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "swotsim",
		Short: "Wide-swath altimetry product simulator",
		Long: "swotsim generates L2 low-rate sea surface height products with " +
			"simulated instrument and geophysical measurement errors.",
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewRunCommand(opts))

	return cmd
}
