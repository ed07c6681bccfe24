package commands

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/learnhub/server/internal/cli/client"
	"github.com/learnhub/server/internal/cli/output"
	"github.com/spf13/cobra"
)

var (
	flagSearch string
	flagRole   string
	flagPage   int
	flagLimit  int
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage LearnHub users (instructors and admins)",
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAuth(); err != nil {
			return err
		}

		params := url.Values{}
		if flagSearch != "" {
			params.Set("search", flagSearch)
		}
		if flagRole != "" {
			params.Set("role", strings.ToUpper(flagRole))
		}
		if flagPage > 0 {
			params.Set("page", strconv.Itoa(flagPage))
		}
		if flagLimit > 0 {
			params.Set("limit", strconv.Itoa(flagLimit))
		}

		var resp client.Response[[]client.User]
		if err := apiClient.Get("/admin/users", params, &resp); err != nil {
			return fmt.Errorf("listing users: %w", err)
		}

		if flagJSON {
			output.JSON(resp)
			return nil
		}
		output.UserTable(resp.Data)
		if p := resp.Pagination; p != nil && p.TotalPages > 1 {
			printf("\nPage %d of %d (%d users)\n", p.Page, p.TotalPages, p.Total)
		}
		return nil
	},
}

var usersGetCmd = &cobra.Command{
	Use:   "get <user-id>",
	Short: "Show a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAuth(); err != nil {
			return err
		}

		var resp client.Response[client.User]
		if err := apiClient.Get("/admin/users/"+url.PathEscape(args[0]), nil, &resp); err != nil {
			return fmt.Errorf("fetching user: %w", err)
		}
		return printUser(resp.Data)
	},
}

var usersSetRoleCmd = &cobra.Command{
	Use:   "set-role <user-id> <STUDENT|INSTRUCTOR|ADMIN>",
	Short: "Change a user's role",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAuth(); err != nil {
			return err
		}

		body := map[string]string{"role": strings.ToUpper(args[1])}
		var resp client.Response[client.User]
		if err := apiClient.Put("/admin/users/"+url.PathEscape(args[0])+"/role", body, &resp); err != nil {
			return fmt.Errorf("updating role: %w", err)
		}
		if flagJSON {
			output.JSON(resp.Data)
			return nil
		}
		printf("%s is now %s\n", resp.Data.Email, resp.Data.Role)
		return nil
	},
}

var usersActivateCmd = &cobra.Command{
	Use:   "activate <user-id>",
	Short: "Re-activate a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setActive(args[0], true)
	},
}

var usersDeactivateCmd = &cobra.Command{
	Use:   "deactivate <user-id>",
	Short: "Deactivate a user; their tokens stop working on the server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setActive(args[0], false)
	},
}

var usersAuditCmd = &cobra.Command{
	Use:   "audit <user-id>",
	Short: "Show recent account events for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAuth(); err != nil {
			return err
		}

		params := url.Values{}
		if flagLimit > 0 {
			params.Set("limit", strconv.Itoa(flagLimit))
		}
		var resp client.Response[[]client.AuditLog]
		if err := apiClient.Get("/admin/users/"+url.PathEscape(args[0])+"/audit", params, &resp); err != nil {
			return fmt.Errorf("fetching audit log: %w", err)
		}

		if flagJSON {
			output.JSON(resp.Data)
			return nil
		}
		output.AuditTable(resp.Data)
		return nil
	},
}

func setActive(id string, active bool) error {
	if err := requireAuth(); err != nil {
		return err
	}

	body := map[string]bool{"isActive": active}
	var resp client.Response[client.User]
	if err := apiClient.Put("/admin/users/"+url.PathEscape(id)+"/active", body, &resp); err != nil {
		return fmt.Errorf("updating user: %w", err)
	}
	if flagJSON {
		output.JSON(resp.Data)
		return nil
	}
	state := "deactivated"
	if resp.Data.IsActive {
		state = "active"
	}
	printf("%s is now %s\n", resp.Data.Email, state)
	return nil
}

func printUser(u client.User) error {
	if flagJSON {
		output.JSON(u)
		return nil
	}
	output.UserInfo(u)
	return nil
}

func init() {
	usersListCmd.Flags().StringVar(&flagSearch, "search", "", "Filter by email or name")
	usersListCmd.Flags().StringVar(&flagRole, "role", "", "Filter by role")
	usersListCmd.Flags().IntVar(&flagPage, "page", 0, "Page number")
	usersListCmd.Flags().IntVar(&flagLimit, "limit", 0, "Page size")
	usersAuditCmd.Flags().IntVar(&flagLimit, "limit", 0, "Maximum number of entries")

	usersCmd.AddCommand(usersListCmd, usersGetCmd, usersSetRoleCmd, usersActivateCmd, usersDeactivateCmd, usersAuditCmd)
	rootCmd.AddCommand(usersCmd)
}
