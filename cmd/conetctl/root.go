package main

import "github.com/spf13/cobra"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conetctl",
		Short: "Drive and observe a conet reactor from the outside",
	}
	cmd.AddCommand(newInspectCmd())
	cmd.AddCommand(newBenchCmd())
	return cmd
}
