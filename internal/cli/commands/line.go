package commands

import (
	"fmt"

	"github.com/learnhub/server/internal/cli/client"
	"github.com/learnhub/server/internal/cli/output"
	"github.com/spf13/cobra"
)

var lineCmd = &cobra.Command{
	Use:   "line",
	Short: "Link or unlink a LINE account",
}

var lineLinkCmd = &cobra.Command{
	Use:   "link <line-user-id>",
	Short: "Link a LINE account to your user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAuth(); err != nil {
			return err
		}

		var resp client.UserResponse[client.Profile]
		if err := apiClient.Post("/auth/line", map[string]string{"lineUserId": args[0]}, &resp); err != nil {
			return fmt.Errorf("linking LINE account: %w", err)
		}
		if flagJSON {
			output.JSON(resp.User)
			return nil
		}
		printf("LINE account linked to %s\n", resp.User.Email)
		return nil
	},
}

var lineUnlinkCmd = &cobra.Command{
	Use:   "unlink",
	Short: "Remove the LINE link from your user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAuth(); err != nil {
			return err
		}

		var resp client.UserResponse[client.Profile]
		if err := apiClient.Delete("/auth/line", &resp); err != nil {
			return fmt.Errorf("unlinking LINE account: %w", err)
		}
		if flagJSON {
			output.JSON(resp.User)
			return nil
		}
		printf("LINE account unlinked from %s\n", resp.User.Email)
		return nil
	},
}

func init() {
	lineCmd.AddCommand(lineLinkCmd, lineUnlinkCmd)
	rootCmd.AddCommand(lineCmd)
}
