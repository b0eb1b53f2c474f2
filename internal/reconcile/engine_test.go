package reconcile

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kithlabs/kith/internal/category"
	"github.com/kithlabs/kith/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, *store.SQLiteStore, store.User) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	id, err := st.EnsureUser(context.Background(), "alice")
	require.NoError(t, err)
	return NewEngine(st, nil), st, store.User{ID: id, Username: "alice"}
}

const recordTypedCSV = `record_type,contact_full_name,contact_tier,category,detail_content,log_timestamp
CONTACT,Jane Doe,1,,,
SYNTHESIZED_DETAIL,Jane Doe,,hobbies,Loves hiking,2024-03-01 10:00:00
SYNTHESIZED_DETAIL,Jane Doe,,Avocation,Loves hiking,
SYNTHESIZED_DETAIL,John Roe,,Goals,Wants to start a company,
BANANA,x,,,,
`

func TestRunRecordTypedImport(t *testing.T) {
	engine, st, user := newTestEngine(t)
	ctx := context.Background()

	result, err := engine.Run(ctx, "csv_merge", recordTypedCSV, []store.User{user}, Options{})
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, 1, result.Details.UsersProcessed)
	assert.Equal(t, 2, result.Details.ContactsAdded)
	assert.Equal(t, 2, result.Details.DetailsAdded)
	assert.Equal(t, 2, result.Details.ContactsSkipped, "each detail row on a known contact counts it as skipped")
	assert.Equal(t, 1, result.Details.DetailsSkipped)
	assert.Equal(t, 1, result.Details.RowsSkippedUnknown)
	assert.Equal(t, 5, result.Details.RowsTotal)
	assert.Nil(t, result.UserResults, "single-scope runs omit per-user breakdown")

	contacts, err := st.ContactsByUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, contacts, 2)
	assert.Equal(t, "Jane Doe", contacts[0].FullName)
	assert.Equal(t, 1, contacts[0].Tier)
	assert.Equal(t, "John Roe", contacts[1].FullName)
	assert.Equal(t, 2, contacts[1].Tier, "lazily created contacts get the default tier")
	assert.NotEmpty(t, contacts[0].VectorCollectionID)

	details, err := st.DetailsByUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, details, 2)
	assert.Equal(t, category.Avocation, details[0].Category, "category synonyms canonicalize on the way in")
	assert.Equal(t, "Loves hiking", details[0].Content)
	assert.Equal(t, category.Goals, details[1].Category)
}

func TestRunLegacyFlatImport(t *testing.T) {
	engine, st, user := newTestEngine(t)
	ctx := context.Background()

	csvText := `Contact Full Name,Contact Tier,Category,Detail/Fact,AI Confidence,Entry Date
Jane Doe,1,preferences,Loves sashimi,0.9,2024-01-02
,2,Goals,orphan detail,,
`
	result, err := engine.Run(ctx, "csv_merge", csvText, []store.User{user}, Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Details.ContactsAdded)
	assert.Equal(t, 1, result.Details.DetailsAdded)
	assert.Equal(t, 1, result.Details.RowsSkippedNoName)

	contacts, err := st.ContactsByUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "Jane Doe", contacts[0].FullName)
	assert.Equal(t, 1, contacts[0].Tier)

	details, err := st.DetailsByUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.Equal(t, category.Avocation, details[0].Category)
	require.NotNil(t, details[0].Confidence)
	assert.InDelta(t, 0.9, *details[0].Confidence, 1e-9)
}

func TestRunReimportDedupesToZero(t *testing.T) {
	engine, _, user := newTestEngine(t)
	ctx := context.Background()

	first, err := engine.Run(ctx, "csv_merge", recordTypedCSV, []store.User{user}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, first.Details.DetailsAdded)

	second, err := engine.Run(ctx, "csv_merge", recordTypedCSV, []store.User{user}, Options{})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, second.Status)
	assert.Equal(t, 0, second.Details.ContactsAdded)
	assert.Equal(t, 0, second.Details.DetailsAdded)
	// 1 from the contact pass plus 3 detail rows resolving to known
	// contacts.
	assert.Equal(t, 4, second.Details.ContactsSkipped)
	assert.Equal(t, 3, second.Details.DetailsSkipped)
	assert.Equal(t, 3, second.Details.RowsSkippedDuplicate)
}

func TestRunLedgerShortCircuit(t *testing.T) {
	engine, _, user := newTestEngine(t)
	ctx := context.Background()

	raw := []byte(recordTypedCSV)
	opts := Options{FileName: "backup.csv", FileHash: Fingerprint(raw)}

	first, err := engine.Run(ctx, "csv_merge", recordTypedCSV, []store.User{user}, opts)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, first.Status)
	require.NotNil(t, first.File)
	assert.Equal(t, "backup.csv", first.File.Name)

	second, err := engine.Run(ctx, "csv_merge", recordTypedCSV, []store.User{user}, opts)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, second.Status)
	assert.NotZero(t, second.ImportID)
	assert.NotEmpty(t, second.ImportedAt)

	// Same file under a different import kind is a fresh key.
	other, err := engine.Run(ctx, "csv_merge_user_2", recordTypedCSV, []store.User{user}, opts)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, other.Status)
}

func TestRunForceBypassesLedger(t *testing.T) {
	engine, _, user := newTestEngine(t)
	ctx := context.Background()

	opts := Options{FileName: "backup.csv", FileHash: Fingerprint([]byte(recordTypedCSV))}
	_, err := engine.Run(ctx, "csv_merge", recordTypedCSV, []store.User{user}, opts)
	require.NoError(t, err)

	opts.Force = true
	result, err := engine.Run(ctx, "csv_merge", recordTypedCSV, []store.User{user}, opts)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, 0, result.Details.DetailsAdded, "forced re-run still dedupes row by row")
}

func TestRunDryRunWritesNothing(t *testing.T) {
	engine, st, user := newTestEngine(t)
	ctx := context.Background()

	opts := Options{DryRun: true, FileName: "backup.csv", FileHash: Fingerprint([]byte(recordTypedCSV))}
	result, err := engine.Run(ctx, "csv_merge", recordTypedCSV, []store.User{user}, opts)
	require.NoError(t, err)

	assert.Equal(t, StatusPreview, result.Status)
	require.NotNil(t, result.Preview)
	assert.True(t, result.Preview.IsRecordType)
	assert.NotEmpty(t, result.Preview.Fieldnames)
	assert.Equal(t, 2, result.Details.ContactsAdded, "dry run reports would-be counts")

	contacts, err := st.ContactsByUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, contacts)

	rec, err := st.FindImport(ctx, "csv_merge", opts.FileHash)
	require.NoError(t, err)
	assert.Nil(t, rec, "dry runs never write the ledger")

	// The same upload still imports for real afterwards.
	opts.DryRun = false
	real, err := engine.Run(ctx, "csv_merge", recordTypedCSV, []store.User{user}, opts)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, real.Status)
}

func TestRunDryRunReportsConflicts(t *testing.T) {
	engine, _, user := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Run(ctx, "csv_merge", recordTypedCSV, []store.User{user}, Options{})
	require.NoError(t, err)

	csvText := `record_type,contact_full_name,contact_tier,category,detail_content
CONTACT,Jane Doe,3,,
SYNTHESIZED_DETAIL,Jane Doe,,Avocation,Loves hiking
`
	result, err := engine.Run(ctx, "csv_merge", csvText, []store.User{user}, Options{
		DryRun: true,
		Policy: Policy{ContactTier: PolicyOverwrite},
	})
	require.NoError(t, err)
	require.NotNil(t, result.Preview)

	var tierConflict, dupConflict *Conflict
	for i := range result.Preview.Conflicts {
		switch result.Preview.Conflicts[i].Type {
		case ConflictTierUpdate:
			tierConflict = &result.Preview.Conflicts[i]
		case ConflictDuplicateDetail:
			dupConflict = &result.Preview.Conflicts[i]
		}
	}
	require.NotNil(t, tierConflict)
	assert.Equal(t, "Jane Doe", tierConflict.Name)
	assert.Equal(t, "1", tierConflict.From)
	assert.Equal(t, 3, tierConflict.To)
	require.NotNil(t, dupConflict)
	assert.Equal(t, "Jane Doe", dupConflict.ContactName)
	assert.Equal(t, "Loves hiking", dupConflict.Content)
}

func TestRunTierPolicy(t *testing.T) {
	engine, st, user := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Run(ctx, "csv_merge", recordTypedCSV, []store.User{user}, Options{})
	require.NoError(t, err)

	update := `record_type,contact_full_name,contact_tier
CONTACT,Jane Doe,3
`
	// Default policy preserves the stored tier.
	_, err = engine.Run(ctx, "csv_merge", update, []store.User{user}, Options{})
	require.NoError(t, err)
	contacts, err := st.ContactsByUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, contacts[0].Tier)

	_, err = engine.Run(ctx, "csv_merge", update, []store.User{user}, Options{
		Policy: Policy{ContactTier: PolicyOverwrite},
	})
	require.NoError(t, err)
	contacts, err = st.ContactsByUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, contacts[0].Tier)
}

func TestRunTierOverwriteIgnoresInvalidTier(t *testing.T) {
	engine, st, user := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Run(ctx, "csv_merge", recordTypedCSV, []store.User{user}, Options{})
	require.NoError(t, err)

	update := `record_type,contact_full_name,contact_tier
CONTACT,Jane Doe,9
`
	_, err = engine.Run(ctx, "csv_merge", update, []store.User{user}, Options{
		Policy: Policy{ContactTier: PolicyOverwrite},
	})
	require.NoError(t, err)
	contacts, err := st.ContactsByUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, contacts[0].Tier, "out-of-range tiers never overwrite")
}

func TestRunAllUsersScope(t *testing.T) {
	engine, st, alice := newTestEngine(t)
	ctx := context.Background()

	bobID, err := st.EnsureUser(ctx, "bob")
	require.NoError(t, err)
	bob := store.User{ID: bobID, Username: "bob"}

	result, err := engine.Run(ctx, "csv_all_users", recordTypedCSV, []store.User{alice, bob}, Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Details.UsersProcessed)
	assert.Equal(t, 4, result.Details.ContactsAdded)
	require.NotNil(t, result.UserResults)
	assert.Equal(t, 2, result.UserResults["alice"].ContactsAdded)
	assert.Equal(t, 2, result.UserResults["bob"].ContactsAdded)

	for _, u := range []store.User{alice, bob} {
		contacts, err := st.ContactsByUser(ctx, u.ID)
		require.NoError(t, err)
		assert.Len(t, contacts, 2, "user %s", u.Username)
	}
}

func TestRunContactNameMatchIsCaseInsensitive(t *testing.T) {
	engine, st, user := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Run(ctx, "csv_merge", recordTypedCSV, []store.User{user}, Options{})
	require.NoError(t, err)

	csvText := `record_type,contact_full_name,contact_tier,category,detail_content
CONTACT,JANE DOE,2,,
SYNTHESIZED_DETAIL,jane doe,,Social,Met at the wedding
`
	result, err := engine.Run(ctx, "csv_merge", csvText, []store.User{user}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Details.ContactsAdded)
	assert.Equal(t, 2, result.Details.ContactsSkipped)
	assert.Equal(t, 1, result.Details.DetailsAdded)

	contacts, err := st.ContactsByUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, contacts, 2)
}

func TestRunStripsByteOrderMark(t *testing.T) {
	engine, st, user := newTestEngine(t)
	ctx := context.Background()

	result, err := engine.Run(ctx, "csv_merge", "\xef\xbb\xbf"+recordTypedCSV, []store.User{user}, Options{})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, 2, result.Details.ContactsAdded)

	contacts, err := st.ContactsByUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, contacts, 2)
}

func TestRunEmptyTable(t *testing.T) {
	engine, _, user := newTestEngine(t)

	result, err := engine.Run(context.Background(), "csv_merge", "", []store.User{user}, Options{})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, 0, result.Details.RowsTotal)
}

func TestRunHeaderOnlyTable(t *testing.T) {
	engine, _, user := newTestEngine(t)

	result, err := engine.Run(context.Background(), "csv_merge",
		"record_type,contact_full_name\n", []store.User{user}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Details.RowsTotal)
	assert.Equal(t, 0, result.Details.ContactsAdded)
}

func TestParseEntryDate(t *testing.T) {
	assert.Equal(t, "2024-03-01T10:00:00Z", parseEntryDate("2024-03-01 10:00:00"))
	assert.Equal(t, "2024-03-01T00:00:00Z", parseEntryDate("2024-03-01"))
	assert.Equal(t, "2024-03-01T10:00:00Z", parseEntryDate("2024-03-01T10:00:00Z"))
	assert.Equal(t, "", parseEntryDate("not a date"))
	assert.Equal(t, "", parseEntryDate(""))
}

func TestNormalizePolicy(t *testing.T) {
	p := normalizePolicy(Policy{ContactTier: " Overwrite ", Details: "APPEND"})
	assert.Equal(t, PolicyOverwrite, p.ContactTier)
	assert.Equal(t, PolicyAppend, p.Details)

	p = normalizePolicy(Policy{ContactTier: "bogus", Details: "overwrite"})
	assert.Equal(t, PolicyPreserve, p.ContactTier)
	assert.Equal(t, PolicyPreserve, p.Details)
}
