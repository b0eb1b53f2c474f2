package reconcile

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"

	"github.com/kithlabs/kith/internal/store"
)

// exportHeader is the master header covering all record types. The import
// side tolerates truncated variants of these names, so round-tripping an
// export through the importer is lossless for contacts and details.
var exportHeader = []string{
	"record_type", "record_id", "contact_id", "contact_full_name", "contact_tier",
	"category", "detail_content", "raw_note_content", "log_timestamp",
}

// ExportCSV writes one user's contacts, synthesized details and raw notes
// as a record-typed CSV table.
func ExportCSV(ctx context.Context, st store.Store, userID int64, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}

	contacts, err := st.ContactsByUser(ctx, userID)
	if err != nil {
		return err
	}
	nameByID := make(map[int64]store.Contact, len(contacts))
	for _, c := range contacts {
		nameByID[c.ID] = c
		rec := []string{
			RecordContact, strconv.FormatInt(c.ID, 10), strconv.FormatInt(c.ID, 10),
			c.FullName, strconv.Itoa(c.Tier), "", "", "", c.CreatedAt,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}

	details, err := st.DetailsByUser(ctx, userID)
	if err != nil {
		return err
	}
	for _, d := range details {
		c := nameByID[d.ContactID]
		rec := []string{
			RecordSynthDetail, strconv.FormatInt(d.ID, 10), strconv.FormatInt(d.ContactID, 10),
			c.FullName, strconv.Itoa(c.Tier), d.Category, d.Content, "", d.CreatedAt,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}

	notes, err := st.RawNotesByUser(ctx, userID)
	if err != nil {
		return err
	}
	for _, n := range notes {
		c := nameByID[n.ContactID]
		rec := []string{
			RecordRawNote, strconv.FormatInt(n.ID, 10), strconv.FormatInt(n.ContactID, 10),
			c.FullName, strconv.Itoa(c.Tier), "", "", n.Content, n.CreatedAt,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
