package commands

import (
	"fmt"

	"github.com/learnhub/server/internal/cli/session"
	"github.com/spf13/cobra"
)

var flagForget bool

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove stored credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagForget {
			if err := session.Clear(); err != nil {
				return fmt.Errorf("clearing session: %w", err)
			}
		} else {
			sess.SignOut()
			if err := session.Save(sess); err != nil {
				return fmt.Errorf("saving session: %w", err)
			}
		}
		printf("Logged out.\n")
		return nil
	},
}

func init() {
	logoutCmd.Flags().BoolVar(&flagForget, "forget", false, "Also forget the server URL and API key")
	rootCmd.AddCommand(logoutCmd)
}
