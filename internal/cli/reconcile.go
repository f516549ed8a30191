package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/bosocmputer/invoice_labeler/internal/reconcile"
	"github.com/spf13/cobra"
)

func newReconcileCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "reconcile [file|-]",
		Short: "Reconcile a saved OCR payload without a server",
		Long: `Reconcile reads an OCR service payload (JSON) and prints the candidate
list, its source, and the rendered display blocks.

With no argument or "-" the payload is read from stdin.`,
		Example: `  # Reconcile a saved response
  labeler reconcile response.json

  # Pipe from curl and print YAML
  curl -s -F file=@invoice.jpg localhost:8080/api/v1/invoice | labeler reconcile - --format yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := ParseFormat(format)
			if err != nil {
				return err
			}

			path := "-"
			if len(args) == 1 {
				path = args[0]
			}
			data, err := readInput(cmd.InOrStdin(), path)
			if err != nil {
				return err
			}

			payload, err := reconcile.DecodePayload(data)
			if err != nil {
				return err
			}
			return WriteResult(cmd.OutOrStdout(), reconcile.Reconcile(payload), f)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "json", "Output format (json, yaml or html)")

	return cmd
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}
	return data, nil
}
