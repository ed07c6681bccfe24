package commands

import (
	"github.com/learnhub/server/internal/cli/output"
	"github.com/spf13/cobra"
)

// Version is the CLI version, injected at build time:
//
//	go build -ldflags "-X github.com/learnhub/server/internal/cli/commands.Version=1.2.3"
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the CLI version",
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagJSON {
			output.JSON(map[string]string{"cliVersion": Version})
			return nil
		}
		printf("learnhub %s\n", Version)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
