package storage

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/bosocmputer/invoice_labeler/internal/processor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestToCorrections_KeepsOrder(t *testing.T) {
	records := []CorrectionRecord{
		{ID: "2", Bad: "0", Good: "O"},
		{ID: "1", Bad: "M1LK", Good: "MILK"},
	}

	got := ToCorrections(records)
	assert.Equal(t, []processor.Correction{{Bad: "0", Good: "O"}, {Bad: "M1LK", Good: "MILK"}}, got)
	assert.NotNil(t, ToCorrections(nil))
}

func TestLabelRecord_FieldNames(t *testing.T) {
	rec := LabelRecord{
		ID:        "abc",
		Label:     "Fresh Milk",
		Class:     "fresh_milk",
		RelPath:   "fresh_milk/20240301_120000_deadbeef.jpg",
		Method:    "auto",
		CreatedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	raw, err := bson.Marshal(rec)
	require.NoError(t, err)
	var doc bson.M
	require.NoError(t, bson.Unmarshal(raw, &doc))
	assert.Equal(t, "abc", doc["_id"])
	assert.Equal(t, rec.RelPath, doc["rel_path"])
	assert.NotContains(t, doc, "object_key")
	assert.NotContains(t, doc, "updated_at")

	body, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"saved_relpath":"fresh_milk/20240301_120000_deadbeef.jpg"`)
}
