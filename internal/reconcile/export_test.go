package reconcile

import (
	"context"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kithlabs/kith/internal/store"
)

func TestExportCSV(t *testing.T) {
	engine, st, user := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Run(ctx, "csv_merge", recordTypedCSV, []store.User{user}, Options{})
	require.NoError(t, err)

	var buf strings.Builder
	require.NoError(t, ExportCSV(ctx, st, user.ID, &buf))

	records, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	require.NotEmpty(t, records)
	assert.Equal(t, exportHeader, records[0])

	var contactRows, detailRows int
	for _, rec := range records[1:] {
		switch rec[0] {
		case RecordContact:
			contactRows++
		case RecordSynthDetail:
			detailRows++
		}
	}
	assert.Equal(t, 2, contactRows)
	assert.Equal(t, 2, detailRows)
}

// An export fed back into the importer must change nothing.
func TestExportImportRoundTrip(t *testing.T) {
	engine, st, user := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Run(ctx, "csv_merge", recordTypedCSV, []store.User{user}, Options{})
	require.NoError(t, err)

	var buf strings.Builder
	require.NoError(t, ExportCSV(ctx, st, user.ID, &buf))

	result, err := engine.Run(ctx, "csv_merge", buf.String(), []store.User{user}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Details.ContactsAdded)
	assert.Equal(t, 0, result.Details.DetailsAdded)
	// 2 contact rows plus 2 detail rows, all resolving to known contacts.
	assert.Equal(t, 4, result.Details.ContactsSkipped)
	assert.Equal(t, 2, result.Details.DetailsSkipped)
}
