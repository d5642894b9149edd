package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/twin3"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of twin3",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "twin3 version %s\n", strings.TrimSpace(twin3.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
