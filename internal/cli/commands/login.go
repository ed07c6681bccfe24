package commands

import (
	"errors"
	"fmt"

	"github.com/learnhub/server/internal/cli/client"
	"github.com/learnhub/server/internal/cli/output"
	"github.com/spf13/cobra"
)

var flagToken string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and sync your LearnHub account",
	Long: `Sign in with email and password through Firebase, or with an ID token
you already hold (for example one minted by "learnhub dev-token").

  learnhub login --email you@example.com --password ...
  learnhub login --token eyJhbGci...`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var creds *client.Credentials
		switch {
		case flagToken != "":
			creds = &client.Credentials{IDToken: flagToken}
		case flagEmail != "" && flagPassword != "":
			var err error
			creds, err = firebaseAuth().SignIn(flagEmail, flagPassword)
			if err != nil {
				return fmt.Errorf("signing in: %w", err)
			}
		default:
			return errors.New("either --token or --email and --password are required")
		}

		user, err := signIn(creds, nil)
		if err != nil {
			return err
		}

		if flagJSON {
			output.JSON(user)
			return nil
		}
		printf("Logged in as %s (%s)\n", user.DisplayName(), user.Email)
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&flagToken, "token", "", "ID token for direct authentication")
	loginCmd.Flags().StringVar(&flagEmail, "email", "", "Email address")
	loginCmd.Flags().StringVar(&flagPassword, "password", "", "Password")
	rootCmd.AddCommand(loginCmd)
}
