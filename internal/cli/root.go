// Package cli holds the labeler command line: offline reconciliation, invoice
// upload against a running server, and dataset export.
package cli

import (
	"context"
	"fmt"

	"github.com/bosocmputer/invoice_labeler/configs"
	"github.com/bosocmputer/invoice_labeler/internal/common"
	"github.com/bosocmputer/invoice_labeler/internal/storage"
	"github.com/spf13/cobra"
)

// NewRootCmd builds the labeler command tree.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "labeler",
		Short: "Invoice OCR reconciliation and product photo labeling",
		Long: `Labeler reconciles invoice OCR results into a labeling vocabulary and
manages the labeled product photo dataset.

Server settings come from the environment (or a .env file), the same as the API.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			configs.LoadConfig()
			common.InitLogger(configs.LOG_LEVEL, configs.LOG_FORMAT)
		},
	}

	cmd.AddCommand(newReconcileCmd())
	cmd.AddCommand(newInvoiceCmd())
	cmd.AddCommand(newLabelsCmd())
	cmd.AddCommand(newExportCmd())

	return cmd
}

// openStore connects to MongoDB for the commands that read label records.
// The returned func closes the connection.
func openStore(ctx context.Context) (*storage.MongoStore, func(), error) {
	if err := storage.InitMongoDB(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	return storage.NewMongoStore(storage.GetMongoDB()), storage.CloseMongoDB, nil
}
