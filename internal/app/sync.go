package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync one account once",
	Long:  "Runs an initial sync when the account has no delta token yet, an incremental sync otherwise",
	RunE: func(cmd *cobra.Command, args []string) error {
		accountIDStr, _ := cmd.Flags().GetString("account")
		accountID, err := uuid.Parse(accountIDStr)
		if err != nil {
			return fmt.Errorf("invalid --account: %w", err)
		}

		ctx := context.Background()
		p, err := newPipeline(ctx)
		if err != nil {
			return err
		}
		defer p.store.Close()

		account, err := p.store.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}

		result, err := p.coordinator.SyncAccount(ctx, account)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Sync complete: %d processed, %d skipped, %d index failures\n",
			result.Processed, result.Skipped, result.IndexFailures)
		return nil
	},
}

func init() {
	syncCmd.Flags().String("account", "", "Account id to sync")
	syncCmd.MarkFlagRequired("account")
	rootCmd.AddCommand(syncCmd)
}
