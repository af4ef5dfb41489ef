package repository

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/event-checkin/internal/model"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

//go:embed migrations/sqlite/*.sql
var sqliteMigrations embed.FS

const sqliteSelectColumns = `id, name, age, blood_group, gender, job, area, whatsapp_number, email,
	code_payload, qr_code_url, registered_at, checked_in_at`

// SQLiteStore persists attendees in a local SQLite file.
type SQLiteStore struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// OpenSQLite opens a SQLite store and applies embedded migrations.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	// Immediate transactions take the write lock up front so concurrent
	// check-ins queue on busy_timeout instead of failing on lock upgrade.
	dsn := "file:" + cleanPath +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applySQLiteMigrations(sqlDB, sqliteMigrations, "migrations/sqlite"); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLiteStore{sqlDB: sqlDB}, nil
}

// Create inserts one attendee.
func (s *SQLiteStore) Create(ctx context.Context, a model.Attendee) error {
	if err := insertSQLite(ctx, s.sqlDB, a); err != nil {
		if isSQLiteUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert attendee: %w", err)
	}
	return nil
}

// CreateBatch inserts all attendees in one transaction.
func (s *SQLiteStore) CreateBatch(ctx context.Context, as []model.Attendee) error {
	if len(as) == 0 {
		return nil
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, a := range as {
		if err := insertSQLite(ctx, tx, a); err != nil {
			if isSQLiteUniqueViolation(err) {
				return ErrAlreadyExists
			}
			return fmt.Errorf("insert attendee %s: %w", a.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Get returns one attendee or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*model.Attendee, error) {
	a, err := getSQLite(ctx, s.sqlDB, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get attendee: %w", err)
	}
	return a, nil
}

// List returns attendees newest first.
func (s *SQLiteStore) List(ctx context.Context) ([]model.Attendee, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+sqliteSelectColumns+` FROM attendees ORDER BY registered_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list attendees: %w", err)
	}
	defer rows.Close()

	var out []model.Attendee
	for rows.Next() {
		a, err := scanSQLite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attendee: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// MarkCheckedIn sets checked_in_at only while it is NULL. The affected row
// count decides which concurrent caller won.
func (s *SQLiteStore) MarkCheckedIn(ctx context.Context, id string, at time.Time) (*model.Attendee, bool, error) {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE attendees SET checked_in_at = MAX(?, registered_at)
		 WHERE id = ? AND checked_in_at IS NULL`,
		toMillis(at), id,
	)
	if err != nil {
		return nil, false, fmt.Errorf("set checked_in_at: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}

	a, err := getSQLite(ctx, tx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, false, err
		}
		return nil, false, fmt.Errorf("get attendee: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit transaction: %w", err)
	}
	return a, n == 1, nil
}

// SetCheckedIn overwrites checked_in_at; nil clears it.
func (s *SQLiteStore) SetCheckedIn(ctx context.Context, id string, at *time.Time) (*model.Attendee, error) {
	var value sql.NullInt64
	if at != nil {
		value = sql.NullInt64{Int64: toMillis(*at), Valid: true}
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `UPDATE attendees SET checked_in_at = ? WHERE id = ?`, value, id)
	if err != nil {
		return nil, fmt.Errorf("update checked_in_at: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	} else if n == 0 {
		return nil, ErrNotFound
	}
	a, err := getSQLite(ctx, tx, id)
	if err != nil {
		return nil, fmt.Errorf("get attendee: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return a, nil
}

// Ping checks the database handle.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

// Close closes the SQLite handle.
func (s *SQLiteStore) Close(context.Context) error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type sqlQueryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type sqlScanner interface {
	Scan(dest ...any) error
}

func insertSQLite(ctx context.Context, db sqlExecer, a model.Attendee) error {
	var checkedInAt sql.NullInt64
	if a.CheckedInAt != nil {
		checkedInAt = sql.NullInt64{Int64: toMillis(*a.CheckedInAt), Valid: true}
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO attendees (
		   id, name, age, blood_group, gender, job, area, whatsapp_number, email,
		   code_payload, qr_code_url, registered_at, checked_in_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.Age, a.BloodGroup, a.Gender, a.Job, a.Area, a.WhatsappNumber, a.Email,
		a.CodePayload, a.QRCodeURL, toMillis(a.RegisteredAt), checkedInAt,
	)
	return err
}

func getSQLite(ctx context.Context, db sqlQueryer, id string) (*model.Attendee, error) {
	a, err := scanSQLite(db.QueryRowContext(ctx,
		`SELECT `+sqliteSelectColumns+` FROM attendees WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

func scanSQLite(row sqlScanner) (*model.Attendee, error) {
	var (
		a            model.Attendee
		registeredAt int64
		checkedInAt  sql.NullInt64
	)
	if err := row.Scan(
		&a.ID, &a.Name, &a.Age, &a.BloodGroup, &a.Gender, &a.Job, &a.Area, &a.WhatsappNumber, &a.Email,
		&a.CodePayload, &a.QRCodeURL, &registeredAt, &checkedInAt,
	); err != nil {
		return nil, err
	}
	a.RegisteredAt = fromMillis(registeredAt)
	if checkedInAt.Valid {
		t := fromMillis(checkedInAt.Int64)
		a.CheckedInAt = &t
	}
	return &a, nil
}

func isSQLiteUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

const sqliteMigrationTable = "schema_migrations"

// applySQLiteMigrations executes each embedded .sql file at most once, in
// name order. Only the "-- +migrate Up" section runs.
func applySQLiteMigrations(sqlDB *sql.DB, migrationFS fs.FS, root string) error {
	entries, err := fs.ReadDir(migrationFS, root)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	if _, err := sqlDB.Exec(`CREATE TABLE IF NOT EXISTS ` + sqliteMigrationTable + ` (
		name TEXT PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, file := range files {
		var found int
		err := sqlDB.QueryRow(`SELECT 1 FROM `+sqliteMigrationTable+` WHERE name = ?`, file).Scan(&found)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check migration %s: %w", file, err)
		}

		content, err := fs.ReadFile(migrationFS, root+"/"+file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		up := extractUpMigration(string(content))
		if strings.TrimSpace(up) == "" {
			continue
		}

		tx, err := sqlDB.Begin()
		if err != nil {
			return fmt.Errorf("begin migration transaction %s: %w", file, err)
		}
		if _, err := tx.Exec(up); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", file, err)
		}
		if _, err := tx.Exec(
			`INSERT OR IGNORE INTO `+sqliteMigrationTable+` (name, applied_at) VALUES (?, ?)`,
			file, toMillis(time.Now()),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", file, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", file, err)
		}
	}
	return nil
}

func extractUpMigration(content string) string {
	upIdx := strings.Index(content, "-- +migrate Up")
	if upIdx == -1 {
		return content
	}
	downIdx := strings.Index(content, "-- +migrate Down")
	if downIdx == -1 {
		return content[upIdx+len("-- +migrate Up"):]
	}
	return content[upIdx+len("-- +migrate Up") : downIdx]
}
