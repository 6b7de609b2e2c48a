// Command token mints a session token for the postflow API.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/pkg/utils"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var userID string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a signed API token",
		Long:  "Print a JWT signed with SECRET_KEY, usable as a Bearer token or as the session cookie.",
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			cfg := config.LoadConfig()
			if cfg.SecretKey == "" {
				return fmt.Errorf("SECRET_KEY is not set")
			}

			token, err := utils.GenerateToken(cfg.SecretKey, userID, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "admin", "user id carried in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
