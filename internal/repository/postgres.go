package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/event-checkin/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

const pgSelectColumns = `id, profile, code_payload, qr_code_url, registered_at, checked_in_at`

// PostgresStore keeps each attendee as a row whose profile is a JSONB
// document.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a PostgresStore over an open pool.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const pgInsertAttendee = `INSERT INTO attendees (id, profile, code_payload, qr_code_url, registered_at, checked_in_at)
	 VALUES ($1, $2, $3, $4, $5, $6)`

// Create inserts one attendee.
func (r *PostgresStore) Create(ctx context.Context, a model.Attendee) error {
	_, err := r.db.Exec(ctx, pgInsertAttendee,
		a.ID, a.Profile, a.CodePayload, a.QRCodeURL, a.RegisteredAt.UTC(), a.CheckedInAt,
	)
	if err != nil {
		if isPgUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert attendee: %w", err)
	}
	return nil
}

// CreateBatch inserts all attendees inside one transaction.
func (r *PostgresStore) CreateBatch(ctx context.Context, as []model.Attendee) error {
	if len(as) == 0 {
		return nil
	}
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	// Rollback after a successful Commit is a no-op.
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, a := range as {
		batch.Queue(pgInsertAttendee,
			a.ID, a.Profile, a.CodePayload, a.QRCodeURL, a.RegisteredAt.UTC(), a.CheckedInAt,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		if isPgUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert attendee batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Get returns a single attendee or ErrNotFound.
func (r *PostgresStore) Get(ctx context.Context, id string) (*model.Attendee, error) {
	a, err := scanAttendee(r.db.QueryRow(ctx,
		`SELECT `+pgSelectColumns+` FROM attendees WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get attendee: %w", err)
	}
	return a, nil
}

// List returns all attendees ordered by registration time descending.
func (r *PostgresStore) List(ctx context.Context) ([]model.Attendee, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+pgSelectColumns+`
		 FROM attendees
		 ORDER BY registered_at DESC, id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list attendees: %w", err)
	}
	defer rows.Close()

	var out []model.Attendee
	for rows.Next() {
		a, err := scanAttendee(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attendee: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// MarkCheckedIn performs the first-scan-wins transition.
//
// SELECT … FOR UPDATE takes a row lock, so a concurrent scan of the same
// code blocks until this transaction commits and then reads the stored
// checked_in_at. Only the transaction that saw NULL writes.
func (r *PostgresStore) MarkCheckedIn(ctx context.Context, id string, at time.Time) (*model.Attendee, bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	a, err := scanAttendee(tx.QueryRow(ctx,
		`SELECT `+pgSelectColumns+` FROM attendees WHERE id = $1 FOR UPDATE`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, ErrNotFound
		}
		return nil, false, fmt.Errorf("lock attendee row: %w", err)
	}

	if a.CheckedInAt != nil {
		if err := tx.Commit(ctx); err != nil {
			return nil, false, fmt.Errorf("commit transaction: %w", err)
		}
		return a, false, nil
	}

	t := checkInTime(at, a.RegisteredAt)
	if _, err := tx.Exec(ctx,
		`UPDATE attendees SET checked_in_at = $2 WHERE id = $1`, id, t,
	); err != nil {
		return nil, false, fmt.Errorf("set checked_in_at: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("commit transaction: %w", err)
	}

	a.CheckedInAt = &t
	return a, true, nil
}

// SetCheckedIn overwrites checked_in_at; nil clears it.
func (r *PostgresStore) SetCheckedIn(ctx context.Context, id string, at *time.Time) (*model.Attendee, error) {
	var value *time.Time
	if at != nil {
		t := at.UTC()
		value = &t
	}
	a, err := scanAttendee(r.db.QueryRow(ctx,
		`UPDATE attendees SET checked_in_at = $2 WHERE id = $1 RETURNING `+pgSelectColumns,
		id, value,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update checked_in_at: %w", err)
	}
	return a, nil
}

// Ping verifies the pool can reach the server.
func (r *PostgresStore) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// Close closes the pool.
func (r *PostgresStore) Close(context.Context) error {
	r.db.Close()
	return nil
}

func scanAttendee(row pgx.Row) (*model.Attendee, error) {
	var (
		a           model.Attendee
		checkedInAt *time.Time
	)
	if err := row.Scan(&a.ID, &a.Profile, &a.CodePayload, &a.QRCodeURL, &a.RegisteredAt, &checkedInAt); err != nil {
		return nil, err
	}
	a.RegisteredAt = a.RegisteredAt.UTC()
	if checkedInAt != nil {
		t := checkedInAt.UTC()
		a.CheckedInAt = &t
	}
	return &a, nil
}

func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
