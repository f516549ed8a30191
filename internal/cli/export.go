package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/bosocmputer/invoice_labeler/internal/storage"
	"github.com/parquet-go/parquet-go"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// ManifestRow is one labeled image in the training manifest.
type ManifestRow struct {
	ID          string   `parquet:"id"`
	Label       string   `parquet:"label"`
	Class       string   `parquet:"class"`
	RelPath     string   `parquet:"saved_relpath"`
	ObjectKey   string   `parquet:"object_key"`
	OCRText     string   `parquet:"ocr_text"`
	Confidence  float64  `parquet:"confidence"`
	Method      string   `parquet:"method"`
	NeedsReview bool     `parquet:"needs_review"`
	Reviewed    bool     `parquet:"reviewed"`
	Suggestions []string `parquet:"suggestions,list"`
	CreatedAtMs int64    `parquet:"created_at_ms"`
}

// ManifestRows converts label records. Unknown-labeled photos are kept; the
// trainer decides what to do with them.
func ManifestRows(records []storage.LabelRecord) []ManifestRow {
	rows := make([]ManifestRow, 0, len(records))
	for _, rec := range records {
		suggestions := make([]string, 0, len(rec.Suggestions))
		for _, s := range rec.Suggestions {
			suggestions = append(suggestions, s.Label)
		}
		rows = append(rows, ManifestRow{
			ID:          rec.ID,
			Label:       rec.Label,
			Class:       rec.Class,
			RelPath:     rec.RelPath,
			ObjectKey:   rec.ObjectKey,
			OCRText:     rec.OCRText,
			Confidence:  rec.Confidence,
			Method:      rec.Method,
			NeedsReview: rec.NeedsReview,
			Reviewed:    rec.Reviewed,
			Suggestions: suggestions,
			CreatedAtMs: rec.CreatedAt.UnixMilli(),
		})
	}
	return rows
}

// WriteManifest writes rows as a Parquet file.
func WriteManifest(w io.Writer, rows []ManifestRow) error {
	writer := parquet.NewGenericWriter[ManifestRow](w)
	if _, err := writer.Write(rows); err != nil {
		return fmt.Errorf("failed to write rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finish parquet file: %w", err)
	}
	return nil
}

func newExportCmd() *cobra.Command {
	var out string
	var reviewedOnly bool

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export label records as a Parquet manifest",
		Long: `Export dumps every label record from MongoDB into a Parquet file that a
training job can join against the dataset folder (saved_relpath) or the
object store (object_key).`,
		Example: `  labeler export --out labels.parquet`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			n, err := exportManifest(cmd.Context(), store, out, reviewedOnly)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d records to %s\n", n, out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "labels.parquet", "Output Parquet file")
	cmd.Flags().BoolVar(&reviewedOnly, "skip-pending", false, "Leave out records still waiting for review")

	return cmd
}

func exportManifest(ctx context.Context, store labelLister, path string, skipPending bool) (int, error) {
	records, err := store.ListLabels(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to list labels: %w", err)
	}
	if skipPending {
		kept := records[:0]
		for _, rec := range records {
			if !rec.NeedsReview || rec.Reviewed {
				kept = append(kept, rec)
			}
		}
		records = kept
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if err := WriteManifest(f, ManifestRows(records)); err != nil {
		return 0, err
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("failed to close %s: %w", path, err)
	}

	log.Info().Int("records", len(records)).Str("path", path).Msg("exported label manifest")
	return len(records), nil
}
