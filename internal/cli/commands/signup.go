package commands

import (
	"errors"
	"fmt"

	"github.com/learnhub/server/internal/cli/client"
	"github.com/learnhub/server/internal/cli/output"
	"github.com/spf13/cobra"
)

var (
	flagEmail    string
	flagPassword string
	flagName     string
)

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account with email and password",
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagEmail == "" || flagPassword == "" {
			return errors.New("--email and --password are required")
		}

		creds, err := firebaseAuth().SignUp(flagEmail, flagPassword)
		if err != nil {
			return fmt.Errorf("creating account: %w", err)
		}

		var overrides *client.SyncRequest
		if flagName != "" {
			overrides = &client.SyncRequest{Name: flagName}
		}
		user, err := signIn(creds, overrides)
		if err != nil {
			return err
		}

		if flagJSON {
			output.JSON(user)
			return nil
		}
		printf("Signed up as %s (%s)\n", user.DisplayName(), user.Role)
		return nil
	},
}

func init() {
	signupCmd.Flags().StringVar(&flagEmail, "email", "", "Email address")
	signupCmd.Flags().StringVar(&flagPassword, "password", "", "Password")
	signupCmd.Flags().StringVar(&flagName, "name", "", "Display name")
	rootCmd.AddCommand(signupCmd)
}
