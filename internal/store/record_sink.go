package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ignite/leadstream/internal/ingest"
)

// RecordSink writes validated lead records to Postgres in batches. One
// sink per database; safe for use by multiple pipelines since every
// call is self-contained.
type RecordSink struct {
	db *sql.DB
}

func NewRecordSink(db *sql.DB) *RecordSink {
	return &RecordSink{db: db}
}

const leadColumns = 13

// InsertBatch upserts one chunk of records for an upload. Re-running
// an ingestion is safe: the same (session, email) pair updates in
// place instead of duplicating.
func (s *RecordSink) InsertBatch(ctx context.Context, sessionID string, records []*ingest.Record) error {
	if len(records) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO leads
		(session_id, source_row, email, first_name, last_name, company_name,
		 job_title, industry, city, state, country, phone, website)
		VALUES `)

	args := make([]interface{}, 0, len(records)*leadColumns)
	for i, rec := range records {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * leadColumns
		sb.WriteString("(")
		for j := 1; j <= leadColumns; j++ {
			if j > 1 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", base+j)
		}
		sb.WriteString(")")

		args = append(args,
			sessionID, rec.Row, rec.Email, rec.FirstName, rec.LastName,
			rec.Company, rec.JobTitle, rec.Industry, rec.City, rec.State,
			rec.Country, rec.Phone, rec.Website)
	}

	sb.WriteString(` ON CONFLICT (session_id, email) DO UPDATE SET
		source_row = EXCLUDED.source_row,
		first_name = COALESCE(NULLIF(EXCLUDED.first_name, ''), leads.first_name),
		last_name = COALESCE(NULLIF(EXCLUDED.last_name, ''), leads.last_name),
		company_name = COALESCE(NULLIF(EXCLUDED.company_name, ''), leads.company_name),
		job_title = COALESCE(NULLIF(EXCLUDED.job_title, ''), leads.job_title),
		industry = COALESCE(NULLIF(EXCLUDED.industry, ''), leads.industry),
		city = COALESCE(NULLIF(EXCLUDED.city, ''), leads.city),
		state = COALESCE(NULLIF(EXCLUDED.state, ''), leads.state),
		country = COALESCE(NULLIF(EXCLUDED.country, ''), leads.country),
		phone = COALESCE(NULLIF(EXCLUDED.phone, ''), leads.phone),
		website = COALESCE(NULLIF(EXCLUDED.website, ''), leads.website),
		updated_at = NOW()`)

	if _, err := s.db.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("insert lead batch (%d records): %w", len(records), err)
	}
	return nil
}

// CountBySession reports how many leads landed for one upload session.
func (s *RecordSink) CountBySession(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM leads WHERE session_id = $1`, sessionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count leads for session %s: %w", sessionID, err)
	}
	return count, nil
}
