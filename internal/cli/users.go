package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/MobasirSarkar/chatrelay/internal/chat"
	"github.com/MobasirSarkar/chatrelay/internal/client"
	"github.com/spf13/cobra"
)

var (
	userName  string
	userEmail string
	userImage string
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage the user directory",
}

var usersAddCmd = &cobra.Command{
	Use:   "add <user-id>",
	Short: "Create or update a directory entry",
	Long: `Create or update a directory entry. The first sync records the
registration time; later syncs only change the profile.

Examples:
  chatrelay users add alice --name "Alice" --email alice@example.com`,
	Args: cobra.ExactArgs(1),
	RunE: runUsersAdd,
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the user directory",
	Args:  cobra.NoArgs,
	RunE:  runUsersList,
}

func init() {
	usersAddCmd.Flags().StringVar(&userName, "name", "", "display name")
	usersAddCmd.Flags().StringVar(&userEmail, "email", "", "email address")
	usersAddCmd.Flags().StringVar(&userImage, "image", "", "avatar URL")

	usersCmd.AddCommand(usersAddCmd)
	usersCmd.AddCommand(usersListCmd)
}

func runUsersAdd(cmd *cobra.Command, args []string) error {
	api := client.New(serverURL, clientTimeout)
	u := chat.User{ID: args[0], Name: userName, Email: userEmail, Image: userImage}
	if err := api.UpsertUser(context.Background(), u); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Synced user %s\n", u.ID)
	return nil
}

func runUsersList(cmd *cobra.Command, args []string) error {
	users, err := client.New(serverURL, clientTimeout).ListUsers(context.Background())
	if err != nil {
		return err
	}
	if len(users) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No users.")
		return nil
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tEMAIL\tREGISTERED")
	for _, u := range users {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", u.ID, u.DisplayName(), u.Email, u.RegisteredAt.Format("2006-01-02"))
	}
	return w.Flush()
}
