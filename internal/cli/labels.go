package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/bosocmputer/invoice_labeler/internal/storage"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

type labelLister interface {
	ListLabels(ctx context.Context, limit int64) ([]storage.LabelRecord, error)
}

func newLabelsCmd() *cobra.Command {
	var limit int64
	var reviewOnly bool

	cmd := &cobra.Command{
		Use:   "labels",
		Short: "List labeled photos",
		Example: `  # Photos still waiting for review
  labeler labels --review`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			records, err := loadLabels(cmd.Context(), store, limit, reviewOnly)
			if err != nil {
				return err
			}
			return writeLabelTable(cmd.OutOrStdout(), records)
		},
	}

	cmd.Flags().Int64Var(&limit, "limit", 50, "Maximum records (0 for all)")
	cmd.Flags().BoolVar(&reviewOnly, "review", false, "Only records that need review")

	return cmd
}

func loadLabels(ctx context.Context, store labelLister, limit int64, reviewOnly bool) ([]storage.LabelRecord, error) {
	records, err := store.ListLabels(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list labels: %w", err)
	}
	if !reviewOnly {
		return records, nil
	}

	pending := records[:0]
	for _, rec := range records {
		if rec.NeedsReview && !rec.Reviewed {
			pending = append(pending, rec)
		}
	}
	return pending, nil
}

func writeLabelTable(w io.Writer, records []storage.LabelRecord) error {
	table := tablewriter.NewTable(w)
	table.Header("ID", "Label", "Method", "Score", "Review", "Path")

	for _, rec := range records {
		review := ""
		switch {
		case rec.Reviewed:
			review = "done"
		case rec.NeedsReview:
			review = "needed"
		}
		if err := table.Append(
			rec.ID,
			rec.Label,
			rec.Method,
			strconv.FormatFloat(rec.Confidence, 'f', 3, 64),
			review,
			rec.RelPath,
		); err != nil {
			return err
		}
	}

	return table.Render()
}
