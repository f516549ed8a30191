package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bosocmputer/invoice_labeler/internal/client"
	"github.com/bosocmputer/invoice_labeler/internal/reconcile"
	"github.com/spf13/cobra"
)

func newInvoiceCmd() *cobra.Command {
	var server string
	var sessionID string
	var format string

	cmd := &cobra.Command{
		Use:   "invoice <image>",
		Short: "Upload an invoice to a running server and print its items",
		Example: `  labeler invoice invoice.jpg --server http://localhost:8080 --session shelf-3`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			image, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read image: %w", err)
			}

			payload, err := client.New(server).SubmitInvoice(cmd.Context(), filepath.Base(args[0]), image, sessionID)
			if err != nil {
				var ue *client.UpstreamError
				if errors.As(err, &ue) {
					// the upstream message is the one the user should see
					return errors.New(ue.Message)
				}
				return err
			}

			res := reconcile.Reconcile(*payload)
			if format != "" {
				f, err := ParseFormat(format)
				if err != nil {
					return err
				}
				return WriteResult(cmd.OutOrStdout(), res, f)
			}
			return printItems(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "Labeler API base URL")
	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID whose labeling vocabulary the invoice sets")
	cmd.Flags().StringVarP(&format, "format", "f", "", "Print the full result as json, yaml or html instead of the item list")

	return cmd
}

func printItems(w io.Writer, res reconcile.Result) error {
	if len(res.Items) == 0 {
		_, err := fmt.Fprintln(w, "No items found.")
		return err
	}
	if _, err := fmt.Fprintf(w, "%d items (%s):\n", len(res.Items), res.ItemsSource); err != nil {
		return err
	}
	for i, item := range res.Items {
		if _, err := fmt.Fprintf(w, "%3d. %s\n", i+1, item); err != nil {
			return err
		}
	}
	return nil
}
