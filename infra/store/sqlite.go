// Package store persists season schedules in SQLite. Writes replace the
// whole season of each client inside one transaction.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kilianp07/kioskpower/core/batch"
	"github.com/kilianp07/kioskpower/core/model"
)

const schema = `CREATE TABLE IF NOT EXISTS schedule_day (
        season INTEGER NOT NULL,
        client_id TEXT NOT NULL,
        day TEXT NOT NULL,
        status TEXT NOT NULL,
        on_time TEXT NOT NULL DEFAULT '',
        off_time TEXT NOT NULL DEFAULT '',
        PRIMARY KEY(season, client_id, day)
    );
    CREATE TABLE IF NOT EXISTS schedule_write (
        season INTEGER NOT NULL,
        client_id TEXT NOT NULL,
        written_at INTEGER NOT NULL,
        PRIMARY KEY(season, client_id)
    );`

// SQLiteStore implements batch.Store.
type SQLiteStore struct {
	db *sql.DB
	// LegacyKeys makes reads emit "YYYY-MM-DDT00:00:00" keys.
	LegacyKeys bool
}

// NewSQLiteStore opens or creates the database and ensures the schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer at a time keeps replaces serialised.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Load returns the stored days of a client, limited to [start, end] when
// the bounds are not zero.
func (s *SQLiteStore) Load(ctx context.Context, seasonID int, clientID string, start, end model.Date) (model.DayMap, error) {
	q := `SELECT day, status, on_time, off_time FROM schedule_day
        WHERE season = ? AND client_id = ?`
	args := []any{seasonID, clientID}
	if !start.IsZero() {
		q += ` AND day >= ?`
		args = append(args, start.String())
	}
	if !end.IsZero() {
		q += ` AND day <= ?`
		args = append(args, end.String())
	}
	rows, err := s.db.QueryContext(ctx, q+` ORDER BY day`, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := model.DayMap{}
	for rows.Next() {
		var key, status, on, off string
		if err := rows.Scan(&key, &status, &on, &off); err != nil {
			return nil, err
		}
		d, err := model.ParseDate(key)
		if err != nil {
			return nil, fmt.Errorf("stored day %q: %w", key, err)
		}
		out[d] = model.Day{Status: model.Status(status), OnTime: on, OffTime: off}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchSchedule implements batch.Reader.
func (s *SQLiteStore) FetchSchedule(ctx context.Context, q batch.Query) (batch.RawSchedule, error) {
	days, err := s.Load(ctx, q.Season, q.ClientID, q.Start, q.End)
	if err != nil {
		return nil, err
	}
	out := make(batch.RawSchedule, len(days))
	for d, day := range days {
		k := d.String()
		if s.LegacyKeys {
			k += "T00:00:00"
		}
		out[k] = day
	}
	return out, nil
}

// SaveSchedules implements batch.Writer. Every listed client's season is
// replaced atomically. Clients without an entry in the schedule are
// cleared.
func (s *SQLiteStore) SaveSchedules(ctx context.Context, req batch.WriteRequest) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	del, err := tx.PrepareContext(ctx, `DELETE FROM schedule_day WHERE season = ? AND client_id = ?`)
	if err != nil {
		return err
	}
	defer func() { _ = del.Close() }()
	ins, err := tx.PrepareContext(ctx, `INSERT INTO schedule_day (season, client_id, day, status, on_time, off_time)
        VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer func() { _ = ins.Close() }()
	mark, err := tx.PrepareContext(ctx, `INSERT INTO schedule_write (season, client_id, written_at) VALUES (?, ?, ?)
        ON CONFLICT(season, client_id) DO UPDATE SET written_at = excluded.written_at`)
	if err != nil {
		return err
	}
	defer func() { _ = mark.Close() }()

	now := time.Now().Unix()
	for _, id := range req.Clients {
		if _, err = del.ExecContext(ctx, req.Season, id); err != nil {
			return fmt.Errorf("clear %s: %w", id, err)
		}
		for d, day := range req.Schedule[id] {
			if _, err = ins.ExecContext(ctx, req.Season, id, d.String(), string(day.Status), day.OnTime, day.OffTime); err != nil {
				return fmt.Errorf("insert %s %s: %w", id, d, err)
			}
		}
		if _, err = mark.ExecContext(ctx, req.Season, id, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// WrittenAt returns when the client's season was last replaced.
func (s *SQLiteStore) WrittenAt(ctx context.Context, seasonID int, clientID string) (time.Time, bool, error) {
	var ts int64
	err := s.db.QueryRowContext(ctx, `SELECT written_at FROM schedule_write WHERE season = ? AND client_id = ?`,
		seasonID, clientID).Scan(&ts)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.Unix(ts, 0).UTC(), true, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
