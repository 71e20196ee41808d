package cli

import (
	"fmt"
	"time"

	"github.com/MobasirSarkar/chatrelay/internal/auth"
	"github.com/MobasirSarkar/chatrelay/internal/config"
	"github.com/spf13/cobra"
)

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Issue a join token for AUTH_MODE=jwt",
	Long: `Issue an HS256 join token signed with JWT_SECRET.

Examples:
  JWT_SECRET=... chatrelay token alice
  chatrelay token alice --ttl 1h`,
	Args: cobra.ExactArgs(1),
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is not set")
	}
	token, err := auth.NewJWTVerifier(cfg.JWTSecret).Issue(args[0], tokenTTL)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
