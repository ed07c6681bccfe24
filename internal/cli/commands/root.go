// Package commands implements the learnhub command line client.
package commands

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/learnhub/server/internal/cli/client"
	"github.com/learnhub/server/internal/cli/output"
	"github.com/learnhub/server/internal/cli/session"
	"github.com/spf13/cobra"
)

const (
	apiKeyEnv       = "FIREBASE_API_KEY"
	authEmulatorEnv = "FIREBASE_AUTH_EMULATOR_HOST"
)

var (
	flagJSON      bool
	flagServerURL string
	flagAPIKey    string

	sess      *session.Session
	apiClient *client.Client
	now       = time.Now
)

var rootCmd = &cobra.Command{
	Use:   "learnhub",
	Short: "LearnHub CLI for accounts and user administration",
	Long: `LearnHub CLI signs you in with your identity provider, keeps the
local user record in sync, and exposes the admin user endpoints.

Get started:
  learnhub signup --email you@example.com --password ...
  learnhub login --email you@example.com --password ...
  learnhub login --token <id-token>
  learnhub whoami
  learnhub users list --role STUDENT`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		sess, err = session.Load()
		if err != nil {
			return fmt.Errorf("loading session: %w", err)
		}
		if flagServerURL != "" {
			sess.ServerURL = flagServerURL
		}
		if key := apiKey(); key != "" {
			sess.FirebaseAPIKey = key
		}
		apiClient = client.NewClient(sess.ServerURL, sess.Token)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Output as JSON")
	rootCmd.PersistentFlags().StringVar(&flagServerURL, "server", "", "Override server URL (default: from session or http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&flagAPIKey, "api-key", "", "Firebase Web API key (default: $"+apiKeyEnv+" or saved session)")
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func apiKey() string {
	if flagAPIKey != "" {
		return flagAPIKey
	}
	return os.Getenv(apiKeyEnv)
}

func firebaseAuth() *client.FirebaseAuth {
	fb := client.NewFirebaseAuth(sess.FirebaseAPIKey)
	fb.Now = now
	if host := os.Getenv(authEmulatorEnv); host != "" {
		base := "http://" + strings.TrimPrefix(host, "http://")
		fb.IdentityToolkitURL = base + "/identitytoolkit.googleapis.com/v1"
		fb.SecureTokenURL = base + "/securetoken.googleapis.com/v1"
	}
	return fb
}

// requireAuth returns an error if no token is stored, and swaps an expiring
// provider token for a fresh one before the command talks to the server.
func requireAuth() error {
	if sess == nil || !sess.HasToken() {
		return errors.New(`not authenticated, run "learnhub login" first`)
	}
	if !sess.NeedsRefresh(now()) {
		return nil
	}

	creds, err := firebaseAuth().Refresh(sess.RefreshToken)
	if err != nil {
		return fmt.Errorf(`refreshing session (run "learnhub login" again): %w`, err)
	}
	sess.Token = creds.IDToken
	if creds.RefreshToken != "" {
		sess.RefreshToken = creds.RefreshToken
	}
	sess.ExpiresAt = creds.ExpiresAt
	if err := session.Save(sess); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	apiClient.Token = sess.Token
	return nil
}

// signIn syncs the local user for a provider token and stores the session.
func signIn(creds *client.Credentials, overrides *client.SyncRequest) (*client.User, error) {
	c := client.NewClient(sess.ServerURL, creds.IDToken)
	user, err := c.Sync(overrides)
	if err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("server rejected sign-in: %s", apiErr.Message)
		}
		return nil, fmt.Errorf("syncing user: %w", err)
	}

	sess.Token = creds.IDToken
	sess.RefreshToken = creds.RefreshToken
	sess.ExpiresAt = creds.ExpiresAt
	rememberUser(user)
	if err := session.Save(sess); err != nil {
		return nil, fmt.Errorf("saving session: %w", err)
	}
	return user, nil
}

func rememberUser(u *client.User) {
	name := ""
	if u.Name != nil {
		name = *u.Name
	}
	sess.User = &session.User{ID: u.ID, Email: u.Email, Name: name, Role: u.Role}
}

func printf(format string, args ...interface{}) {
	fmt.Fprintf(output.Out, format, args...)
}
