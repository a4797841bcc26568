package callstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rotarycore/phonecore/internal/events"
)

// Record is one append-only call-log entry, column-for-column matching the
// persisted schema.
type Record struct {
	ID              int64
	Timestamp       time.Time
	Direction       events.Direction
	Status          events.CallStatus
	CallerID        string // empty if not applicable
	DialedNumber    string // empty if not applicable
	Destination     string // empty if not applicable
	SpeedDialCode   string // empty if not applicable
	DurationSeconds int
	ErrorMessage    string // empty if not applicable
}

// Store is the call-log record store: the authoritative source for
// historical call queries, and the only component permitted to write the
// call_log table.
type Store struct {
	db *DB
}

// NewStore wraps an opened DB.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// Create inserts a new in-progress (or already-terminal) record and
// assigns its ID.
func (s *Store) Create(ctx context.Context, r *Record) error {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO call_log (timestamp, direction, status, caller_id, dialed_number,
		 destination, speed_dial_code, duration_seconds, error_message)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Timestamp.UTC().Format(time.RFC3339), r.Direction, r.Status,
		nullable(r.CallerID), nullable(r.DialedNumber), nullable(r.Destination),
		nullable(r.SpeedDialCode), r.DurationSeconds, nullable(r.ErrorMessage),
	)
	if err != nil {
		return fmt.Errorf("inserting call record: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	r.ID = id
	return nil
}

// Close performs the single terminal update spec.md §3 permits: closing an
// InProgress record's status and duration (and, for failures, its error
// message).
func (s *Store) Close(ctx context.Context, id int64, status events.CallStatus, durationSeconds int, errorMessage string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE call_log SET status = ?, duration_seconds = ?, error_message = ? WHERE id = ?`,
		status, durationSeconds, nullable(errorMessage), id,
	)
	if err != nil {
		return fmt.Errorf("closing call record %d: %w", id, err)
	}
	return nil
}

// Get returns a single record by ID, or nil if none exists.
func (s *Store) Get(ctx context.Context, id int64) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, timestamp, direction, status, caller_id, dialed_number,
		 destination, speed_dial_code, duration_seconds, error_message
		 FROM call_log WHERE id = ?`, id)
	return scanRecord(row)
}

// ListFilter narrows List results.
type ListFilter struct {
	Direction events.Direction // empty = any
	Status    events.CallStatus
	Limit     int
	Offset    int
}

// List returns records matching filter, most recent first.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]Record, error) {
	where := "1=1"
	var args []any
	if filter.Direction != "" {
		where += " AND direction = ?"
		args = append(args, filter.Direction)
	}
	if filter.Status != "" {
		where += " AND status = ?"
		args = append(args, filter.Status)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timestamp, direction, status, caller_id, dialed_number,
		 destination, speed_dial_code, duration_seconds, error_message
		 FROM call_log WHERE `+where+` ORDER BY timestamp DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("listing call records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecordRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// Delete removes a single record by ID.
func (s *Store) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM call_log WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting call record %d: %w", id, err)
	}
	return nil
}

// DayStats summarizes completed-call volume for one UTC calendar day.
type DayStats struct {
	Day            string // YYYY-MM-DD
	TotalCalls     int
	CompletedCalls int
	TotalDuration  int
}

// StatsOverDays returns per-day call volume for the last days days.
func (s *Store) StatsOverDays(ctx context.Context, days int) ([]DayStats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT substr(timestamp, 1, 10) AS day,
		 COUNT(*) AS total,
		 SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS completed,
		 SUM(duration_seconds) AS total_duration
		 FROM call_log
		 WHERE timestamp >= datetime('now', '-' || ? || ' days')
		 GROUP BY day ORDER BY day DESC`, events.StatusCompleted, days)
	if err != nil {
		return nil, fmt.Errorf("computing call stats: %w", err)
	}
	defer rows.Close()

	var out []DayStats
	for rows.Next() {
		var d DayStats
		if err := rows.Scan(&d.Day, &d.TotalCalls, &d.CompletedCalls, &d.TotalDuration); err != nil {
			return nil, fmt.Errorf("scanning stats row: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row *sql.Row) (*Record, error) {
	r, err := scanInto(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

func scanRecordRows(rows *sql.Rows) (*Record, error) {
	return scanInto(rows)
}

func scanInto(s rowScanner) (*Record, error) {
	var r Record
	var ts string
	var callerID, dialed, dest, code, errMsg sql.NullString
	if err := s.Scan(&r.ID, &ts, &r.Direction, &r.Status, &callerID, &dialed, &dest, &code, &r.DurationSeconds, &errMsg); err != nil {
		return nil, err
	}
	parsed, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return nil, fmt.Errorf("parsing call record timestamp %q: %w", ts, err)
	}
	r.Timestamp = parsed
	r.CallerID = callerID.String
	r.DialedNumber = dialed.String
	r.Destination = dest.String
	r.SpeedDialCode = code.String
	r.ErrorMessage = errMsg.String
	return &r, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
