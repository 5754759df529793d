package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DBExecutor is an interface that allows methods to accept either *sql.DB or *sql.Tx
type DBExecutor interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// isUniqueConstraintErr returns true when the error indicates a unique/constraint violation
func isUniqueConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "unique") || strings.Contains(s, "constraint failed")
}

// RecordBuild inserts b and returns its id. An empty b.ID gets a fresh UUID; a generated
// id that collides is replaced and the insert retried.
func RecordBuild(db DBExecutor, b Build) (string, error) {
	if strings.TrimSpace(b.Variant) == "" {
		return "", fmt.Errorf("variant must be non-empty")
	}
	if b.Status == "" {
		b.Status = StatusOK
	}
	if b.StartedAt.IsZero() {
		b.StartedAt = time.Now()
	}
	generated := b.ID == ""

	const maxRetries = 3
	for attempt := 0; attempt < maxRetries; attempt++ {
		if generated {
			b.ID = uuid.NewString()
		}
		_, err := db.Exec(`INSERT INTO builds (id, variant, source, output, status, error, keys, entries,
			matrix_rows, matrix_cols, bytes, checksum, started_at, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			b.ID, b.Variant, b.Source, b.Output, b.Status, nullableString(b.Error), b.Keys, b.Entries,
			b.Rows, b.Cols, b.Bytes, nullableString(b.Checksum), b.StartedAt.UTC(), b.Duration.Milliseconds())
		if err == nil {
			return b.ID, nil
		}
		if generated && isUniqueConstraintErr(err) {
			continue
		}
		return "", fmt.Errorf("insert build: %w", err)
	}
	return "", fmt.Errorf("could not record build after %d retries", maxRetries)
}

const buildColumns = `id, variant, source, output, status, error, keys, entries, matrix_rows, matrix_cols,
	bytes, checksum, started_at, duration_ms`

func scanBuild(sc interface{ Scan(...any) error }) (Build, error) {
	var b Build
	var source, output, errMsg, checksum sql.NullString
	var ms int64
	if err := sc.Scan(&b.ID, &b.Variant, &source, &output, &b.Status, &errMsg, &b.Keys, &b.Entries,
		&b.Rows, &b.Cols, &b.Bytes, &checksum, &b.StartedAt, &ms); err != nil {
		return Build{}, err
	}
	b.Source = source.String
	b.Output = output.String
	b.Error = errMsg.String
	b.Checksum = checksum.String
	b.Duration = time.Duration(ms) * time.Millisecond
	return b, nil
}

// GetBuild returns the build with the given id.
func GetBuild(db DBExecutor, id string) (Build, error) {
	row := db.QueryRow(`SELECT `+buildColumns+` FROM builds WHERE id = ?`, id)
	b, err := scanBuild(row)
	if err != nil {
		return Build{}, fmt.Errorf("get build %s: %w", id, err)
	}
	return b, nil
}

// ListBuilds returns the most recent builds first. limit <= 0 returns all of them.
func ListBuilds(db DBExecutor, limit int) ([]Build, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.Query(`SELECT `+buildColumns+` FROM builds ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Build
	for rows.Next() {
		b, err := scanBuild(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ExportEntries writes rows for buildID through a BatchWriter, batchSize rows per
// transaction, and returns once every batch is committed.
func ExportEntries(ctx context.Context, conn *sql.DB, buildID string, rows []EntryRow, batchSize int) error {
	if buildID == "" {
		return fmt.Errorf("buildID must be non-empty")
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	bw := NewBatchWriter(conn, 1, 0)
	for start := 0; start < len(rows); start += batchSize {
		if err := ctx.Err(); err != nil {
			bw.Close()
			return err
		}
		chunk := rows[start:min(start+batchSize, len(rows))]
		err := bw.Submit(func(ctx context.Context, tx *sql.Tx) error {
			stmt, err := tx.PrepareContext(ctx, `INSERT INTO build_entries
				(build_id, seq, surface, left_id, right_id, cost, features) VALUES (?, ?, ?, ?, ?, ?, ?)`)
			if err != nil {
				return err
			}
			defer stmt.Close()
			for _, r := range chunk {
				if _, err := stmt.ExecContext(ctx, buildID, r.Seq, r.Surface, r.LeftID, r.RightID, r.Cost, r.Features); err != nil {
					return fmt.Errorf("insert entry %d: %w", r.Seq, err)
				}
			}
			return nil
		})
		if err != nil {
			bw.Close()
			return err
		}
	}
	return bw.Close()
}

// LookupEntries returns the exported entries of buildID with the given surface.
func LookupEntries(db DBExecutor, buildID, surface string) ([]EntryRow, error) {
	rows, err := db.Query(`SELECT seq, surface, left_id, right_id, cost, features FROM build_entries
		WHERE build_id = ? AND surface = ? ORDER BY seq`, buildID, surface)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []EntryRow
	for rows.Next() {
		var r EntryRow
		var features sql.NullString
		if err := rows.Scan(&r.Seq, &r.Surface, &r.LeftID, &r.RightID, &r.Cost, &features); err != nil {
			return nil, err
		}
		r.Features = features.String
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// CountEntries returns how many entries were exported for buildID.
func CountEntries(db DBExecutor, buildID string) (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM build_entries WHERE build_id = ?`, buildID).Scan(&n)
	return n, err
}

// nullableString returns nil for "" else the value.
func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
