// Command git-share-obj reclaims disk space across a collection of
// co-located git repositories by replacing byte-identical loose objects
// in distinct repositories with hard links to a single inode.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "git-share-obj [roots...]",
		Short: "Deduplicate loose git objects across repositories via hard links",
	}
	addRunFlags(cmd)
	cmd.RunE = runRootCmd
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "git-share-obj 0.1.0-dev")
		},
	}
}
