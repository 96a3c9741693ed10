package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version задается при сборке через -ldflags "-X main.version=..."
var version = "dev"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "astproxy %s\n", version)
		},
	}
}
