package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"zentoerp/deployctl/internal/security"
)

var (
	seedEmail    string
	seedPassword string
)

var seedAdminCmd = &cobra.Command{
	Use:   "seed-admin",
	Short: "Create or update the platform admin user",
	Long: `Upserts the admin user in public.users with a bcrypt-hashed password.
Idempotent: re-running with the same email only rotates the password.
The password comes from --password or the ADMIN_PASSWORD env var.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		password := seedPassword
		if password == "" {
			password = os.Getenv("ADMIN_PASSWORD")
		}
		if seedEmail == "" || password == "" {
			return fmt.Errorf("seed-admin requires --email and a password (--password or ADMIN_PASSWORD)")
		}

		hash, err := security.HashPassword([]byte(password), cfg.BcryptCost)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}

		conn, err := openDB()
		if err != nil {
			return err
		}
		defer conn.Close()

		now := time.Now().UTC()
		_, err = conn.ExecContext(cmd.Context(), `
			INSERT INTO users (id, email, password_hash, is_admin, created_at, updated_at)
			VALUES ($1, $2, $3, TRUE, $4, $4)
			ON CONFLICT (email) DO UPDATE
			SET password_hash = EXCLUDED.password_hash, is_admin = TRUE, updated_at = EXCLUDED.updated_at`,
			uuid.New().String(), seedEmail, hash, now)
		if err != nil {
			return fmt.Errorf("upsert admin: %w", err)
		}

		logger.Info("admin user seeded", zap.String("email", seedEmail))
		return nil
	},
}

func init() {
	seedAdminCmd.Flags().StringVar(&seedEmail, "email", "", "admin email address")
	seedAdminCmd.Flags().StringVar(&seedPassword, "password", "", "admin password (prefer ADMIN_PASSWORD)")
	rootCmd.AddCommand(seedAdminCmd)
}
