package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	appLog "famcal/internal/log"
	"famcal/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// Postgres error codes we translate into store errors.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

const eventColumns = `id, title, category_id, member_ids, start_time, end_time,
	date::text, recurrence::text, note, created_at, updated_at`

const exceptionColumns = `id, event_id, date::text, type, modified_fields::text`

// PostgresStore keeps events and exceptions in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// ConnectPostgres opens a pool for dsn, checks connectivity and applies the
// embedded schema.
func ConnectPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}

	s := &PostgresStore{pool: pool, now: time.Now}
	if err := s.Ready(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres not ready: %w", err)
	}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	appLog.Info("store: connected to postgres", "host", cfg.ConnConfig.Host, "database", cfg.ConnConfig.Database)
	return s, nil
}

// Ready pings the database.
func (s *PostgresStore) Ready(ctx context.Context) error {
	var one int
	return s.pool.QueryRow(ctx, "select 1").Scan(&one)
}

// Migrate applies the embedded schema. It is idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("exec migration: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) ListEvents(ctx context.Context) ([]model.Event, error) {
	return queryEvents(ctx, s.pool)
}

func (s *PostgresStore) GetEvent(ctx context.Context, id string) (model.Event, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+eventColumns+" FROM events WHERE id = $1", id)
	ev, err := scanEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Event{}, ErrNotFound
	}
	return ev, err
}

func (s *PostgresStore) CreateEvent(ctx context.Context, ev model.Event) (model.Event, error) {
	id, err := newID(eventIDPrefix)
	if err != nil {
		return model.Event{}, err
	}
	date, rec, err := scheduleColumns(ev.Schedule)
	if err != nil {
		return model.Event{}, err
	}

	stored := ev.Clone()
	stored.ID = id
	stored.CreatedAt = s.timestamp()
	stored.UpdatedAt = stored.CreatedAt

	_, err = s.pool.Exec(ctx, `
INSERT INTO events (id, title, category_id, member_ids, start_time, end_time, date, recurrence, note, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7::date, $8::jsonb, $9, $10, $11)`,
		stored.ID, stored.Title, stored.CategoryID, memberIDsColumn(stored.MemberIDs),
		stored.StartTime, stored.EndTime, date, rec, stored.Note,
		stored.CreatedAt, stored.UpdatedAt,
	)
	if err != nil {
		return model.Event{}, fmt.Errorf("insert event: %w", err)
	}
	return stored, nil
}

func (s *PostgresStore) UpdateEvent(ctx context.Context, ev model.Event) (model.Event, error) {
	date, rec, err := scheduleColumns(ev.Schedule)
	if err != nil {
		return model.Event{}, err
	}

	stored := ev.Clone()
	stored.UpdatedAt = s.timestamp()

	err = s.pool.QueryRow(ctx, `
UPDATE events
SET title = $2, category_id = $3, member_ids = $4, start_time = $5, end_time = $6,
    date = $7::date, recurrence = $8::jsonb, note = $9, updated_at = $10
WHERE id = $1
RETURNING created_at`,
		stored.ID, stored.Title, stored.CategoryID, memberIDsColumn(stored.MemberIDs),
		stored.StartTime, stored.EndTime, date, rec, stored.Note, stored.UpdatedAt,
	).Scan(&stored.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Event{}, ErrNotFound
	}
	if err != nil {
		return model.Event{}, fmt.Errorf("update event: %w", err)
	}
	stored.CreatedAt = stored.CreatedAt.UTC()
	return stored, nil
}

// DeleteEvent relies on ON DELETE CASCADE to drop the exceptions.
func (s *PostgresStore) DeleteEvent(ctx context.Context, id string) error {
	ct, err := s.pool.Exec(ctx, "DELETE FROM events WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListExceptions(ctx context.Context, eventID string) ([]model.Exception, error) {
	return queryExceptions(ctx, s.pool, eventID)
}

func (s *PostgresStore) CreateException(ctx context.Context, ex model.Exception) (model.Exception, error) {
	id, err := newID(exceptionIDPrefix)
	if err != nil {
		return model.Exception{}, err
	}

	var modified *string
	if ex.ModifiedFields != nil {
		b, err := json.Marshal(ex.ModifiedFields)
		if err != nil {
			return model.Exception{}, err
		}
		v := string(b)
		modified = &v
	}

	stored := ex.Clone()
	stored.ID = id

	_, err = s.pool.Exec(ctx, `
INSERT INTO event_exceptions (id, event_id, date, type, modified_fields)
VALUES ($1, $2, $3::date, $4, $5::jsonb)`,
		stored.ID, stored.EventID, stored.Date.String(), string(stored.Kind), modified,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgUniqueViolation:
				return model.Exception{}, ErrDuplicateException
			case pgForeignKeyViolation:
				return model.Exception{}, ErrNotFound
			}
		}
		return model.Exception{}, fmt.Errorf("insert exception: %w", err)
	}
	return stored, nil
}

func (s *PostgresStore) DeleteException(ctx context.Context, eventID, id string) error {
	ct, err := s.pool.Exec(ctx, "DELETE FROM event_exceptions WHERE id = $1 AND event_id = $2", id, eventID)
	if err != nil {
		return fmt.Errorf("delete exception: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Snapshot reads both tables inside one read-only repeatable-read
// transaction so the exceptions always match the events.
func (s *PostgresStore) Snapshot(ctx context.Context) ([]model.Event, []model.Exception, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, nil, fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback(ctx)

	events, err := queryEvents(ctx, tx)
	if err != nil {
		return nil, nil, err
	}
	exceptions, err := queryExceptions(ctx, tx, "")
	if err != nil {
		return nil, nil, err
	}
	return events, exceptions, tx.Commit(ctx)
}

// timestamp is truncated to the column precision so returned values match
// what a later read yields.
func (s *PostgresStore) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type scanner interface {
	Scan(dest ...any) error
}

func queryEvents(ctx context.Context, q querier) ([]model.Event, error) {
	rows, err := q.Query(ctx, "SELECT "+eventColumns+" FROM events ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	out := make([]model.Event, 0)
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func queryExceptions(ctx context.Context, q querier, eventID string) ([]model.Exception, error) {
	sql := "SELECT " + exceptionColumns + " FROM event_exceptions"
	args := []any{}
	if eventID != "" {
		sql += " WHERE event_id = $1"
		args = append(args, eventID)
	}
	sql += " ORDER BY created_at, id"

	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query exceptions: %w", err)
	}
	defer rows.Close()

	out := make([]model.Exception, 0)
	for rows.Next() {
		var (
			ex       model.Exception
			date     string
			kind     string
			modified *string
		)
		if err := rows.Scan(&ex.ID, &ex.EventID, &date, &kind, &modified); err != nil {
			return nil, fmt.Errorf("scan exception: %w", err)
		}
		if ex.Date, err = model.ParseDate(date); err != nil {
			return nil, fmt.Errorf("exception %s: %w", ex.ID, err)
		}
		ex.Kind = model.ExceptionKind(kind)
		if modified != nil {
			var mf model.ModifiedFields
			if err := json.Unmarshal([]byte(*modified), &mf); err != nil {
				return nil, fmt.Errorf("exception %s modified_fields: %w", ex.ID, err)
			}
			ex.ModifiedFields = &mf
		}
		out = append(out, ex)
	}
	return out, rows.Err()
}

func scanEvent(row scanner) (model.Event, error) {
	var (
		ev   model.Event
		date *string
		rec  *string
	)
	err := row.Scan(
		&ev.ID, &ev.Title, &ev.CategoryID, &ev.MemberIDs, &ev.StartTime, &ev.EndTime,
		&date, &rec, &ev.Note, &ev.CreatedAt, &ev.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Event{}, err
		}
		return model.Event{}, fmt.Errorf("scan event: %w", err)
	}
	ev.CreatedAt = ev.CreatedAt.UTC()
	ev.UpdatedAt = ev.UpdatedAt.UTC()

	var (
		d *model.Date
		r *model.Recurrence
	)
	if date != nil {
		parsed, err := model.ParseDate(*date)
		if err != nil {
			return model.Event{}, fmt.Errorf("event %s: %w", ev.ID, err)
		}
		d = &parsed
	}
	if rec != nil {
		r = new(model.Recurrence)
		if err := json.Unmarshal([]byte(*rec), r); err != nil {
			return model.Event{}, fmt.Errorf("event %s recurrence: %w", ev.ID, err)
		}
	}
	if ev.Schedule, err = model.ScheduleFrom(d, r); err != nil {
		return model.Event{}, fmt.Errorf("event %s: %w", ev.ID, err)
	}
	return ev, nil
}

// scheduleColumns maps a schedule to the nullable (date, recurrence) columns.
func scheduleColumns(s model.Schedule) (*string, *string, error) {
	switch v := s.(type) {
	case model.SingleDate:
		d := v.Date.String()
		return &d, nil, nil
	case model.WeeklyRule:
		b, err := json.Marshal(model.RecurrenceOf(v))
		if err != nil {
			return nil, nil, err
		}
		r := string(b)
		return nil, &r, nil
	default:
		return nil, nil, model.ErrScheduleMissing
	}
}

func memberIDsColumn(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

var _ Store = (*PostgresStore)(nil)
