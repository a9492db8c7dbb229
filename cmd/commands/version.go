package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set with -ldflags at build time.
var Version = "0.1.0-dev"

// VersionCmd ...
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version info",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(Version)
	},
}
