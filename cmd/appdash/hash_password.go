package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/applications-dashboard/internal/config"
)

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password PASSWORD",
	Short: "Print a bcrypt hash for auth.passwordHash",
	Long:  "Hash PASSWORD with bcrypt for the auth.passwordHash setting or APPDASH_AUTH_PASSWORD_HASH. The cost comes from APPDASH_BCRYPT_COST.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		passwordConfig, err := config.NewPasswordConfig(os.Getenv)
		if err != nil {
			return fmt.Errorf("failed to create password config: %w", err)
		}
		hash, err := passwordConfig.HashPassword(args[0])
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
		return err
	},
}

func init() {
	rootCmd.AddCommand(hashPasswordCmd)
}
