package commands

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/learnhub/server/internal/config"
	"github.com/learnhub/server/internal/identity"
	"github.com/spf13/cobra"
)

var (
	flagSubject string
	flagSecret  string
	flagIssuer  string
	flagTTL     time.Duration
)

var devTokenCmd = &cobra.Command{
	Use:   "dev-token",
	Short: "Mint a token for a server running with AUTH_PROVIDER=local",
	Long: `Mint an HS256 ID token accepted by a server started with
AUTH_PROVIDER=local. The secret and issuer default to LOCAL_AUTH_SECRET and
LOCAL_AUTH_ISSUER, the same variables the server reads.

  learnhub login --token "$(learnhub dev-token --email dev@example.com)"`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		secret := flagSecret
		if secret == "" {
			secret = os.Getenv("LOCAL_AUTH_SECRET")
		}
		if secret == "" {
			return errors.New("--secret or LOCAL_AUTH_SECRET is required")
		}
		issuer := flagIssuer
		if issuer == "" {
			issuer = os.Getenv("LOCAL_AUTH_ISSUER")
		}
		if issuer == "" {
			issuer = config.DefaultLocalIssuer
		}
		subject := flagSubject
		if subject == "" {
			subject = uuid.NewString()
		}

		v, err := identity.NewLocalVerifier(secret, issuer)
		if err != nil {
			return err
		}
		token, err := v.Mint(subject, flagEmail, flagName, flagTTL)
		if err != nil {
			return fmt.Errorf("minting token: %w", err)
		}
		printf("%s\n", token)
		return nil
	},
}

func init() {
	devTokenCmd.Flags().StringVar(&flagSubject, "subject", "", "Token subject (default: random UUID)")
	devTokenCmd.Flags().StringVar(&flagEmail, "email", "", "Email claim")
	devTokenCmd.Flags().StringVar(&flagName, "name", "", "Name claim")
	devTokenCmd.Flags().StringVar(&flagSecret, "secret", "", "Signing secret (default: $LOCAL_AUTH_SECRET)")
	devTokenCmd.Flags().StringVar(&flagIssuer, "issuer", "", "Issuer and audience (default: $LOCAL_AUTH_ISSUER or "+config.DefaultLocalIssuer+")")
	devTokenCmd.Flags().DurationVar(&flagTTL, "ttl", time.Hour, "Token lifetime")
	rootCmd.AddCommand(devTokenCmd)
}
