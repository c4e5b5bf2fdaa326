package main

import (
	"fmt"

	internal "github.com/ZanzyTHEbar/callbridge/callbridge"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of callbridge",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "callbridge version %s\n", internal.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
