package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("sentryd version %s\ncommit: %s\nbuilt: %s\n", Version, Commit, BuildTime)
		return nil
	},
}
