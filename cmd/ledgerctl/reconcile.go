package main

import (
	"encoding/json"
	"fmt"
	"os"

	"kart-reconciler/internal/app"
	"kart-reconciler/internal/model"

	"github.com/spf13/cobra"
)

func reconcileCmd() *cobra.Command {
	var (
		transactionID string
		reference     string
		dataFile      string
	)

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Re-drive reconciliation for a transaction",
		Long: `Re-drive reconciliation for a stuck transaction.

The transaction is verified with the gateway and committed exactly as a
webhook delivery would be. Running it for a settled order is a no-op.

Examples:
  ledgerctl reconcile --tx 6f1c...
  ledgerctl reconcile --tx 6f1c... --reference ORDER-42 --data payload.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n := model.Notification{TransactionID: transactionID, Reference: reference}
			if dataFile != "" {
				data, err := os.ReadFile(dataFile)
				if err != nil {
					return fmt.Errorf("failed to read payload: %w", err)
				}
				n.Data = string(data)
			}

			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			application, err := app.New(cmd.Context(), cfg, nil, logger)
			if err != nil {
				return err
			}
			defer application.Close()

			result, err := application.Reconcile.Reconcile(cmd.Context(), n)
			if err != nil {
				return fmt.Errorf("reconcile %s: %w", transactionID, err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().StringVar(&transactionID, "tx", "", "gateway transaction id")
	cmd.Flags().StringVar(&reference, "reference", "", "order reference, when it differs from the transaction id")
	cmd.Flags().StringVar(&dataFile, "data", "", "path to a JSON order payload")
	_ = cmd.MarkFlagRequired("tx")

	return cmd
}
