package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/postwing/postwing/internal/models"
	"github.com/postwing/postwing/internal/store"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Setup database and optionally link an account",
	Long:  "Creates the schema and, when an email and access token are given, inserts an account row for development/testing",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		st, err := store.Connect(ctx, viper.GetString("database.url"))
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer st.Close()

		fmt.Println("Running migrations...")
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		email, _ := cmd.Flags().GetString("account-email")
		token, _ := cmd.Flags().GetString("account-token")
		if email != "" && token != "" {
			account := models.Account{
				ID:          uuid.New(),
				Email:       email,
				Name:        email,
				AccessToken: token,
			}
			if err := st.CreateAccount(ctx, account); err != nil {
				return fmt.Errorf("failed to insert account: %w", err)
			}
			fmt.Printf("✓ Linked account %s (%s)\n", account.ID, email)
		}

		fmt.Println("✓ Database setup complete")
		return nil
	},
}

func init() {
	setupCmd.Flags().String("account-email", "", "Mailbox address to link")
	setupCmd.Flags().String("account-token", "", "Provider access token for the linked mailbox")
	rootCmd.AddCommand(setupCmd)
}
