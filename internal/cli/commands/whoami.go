package commands

import (
	"fmt"

	"github.com/learnhub/server/internal/cli/output"
	"github.com/learnhub/server/internal/cli/session"
	"github.com/spf13/cobra"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the current authenticated user",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAuth(); err != nil {
			return err
		}

		user, err := apiClient.CurrentUser()
		if err != nil {
			return fmt.Errorf("fetching user: %w", err)
		}
		rememberUser(user)
		_ = session.Save(sess)

		if flagJSON {
			output.JSON(user)
			return nil
		}
		output.UserInfo(*user)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(whoamiCmd)
}
