package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/artpar/releaser/internal/core/release"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const entityDeployRecord = "deploy_record"

// =============================================================================
// Executor Interface - Shared by DB and Transaction
// =============================================================================

// executor abstracts database operations that can be performed on both
// a database connection and a transaction.
type executor interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens the database at dsn and runs migrations.
// ":memory:" gives a private in-memory database.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", dsn+"?_busy_timeout=5000")
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to open database", ErrConnectionFailed)
	}
	if dsn == ":memory:" {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to ping database", ErrConnectionFailed)
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteStore{db: db}, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// Deploy Record Operations
// =============================================================================

// deployRecordRow represents a deploy_records row.
type deployRecordRow struct {
	ID         string  `db:"id"`
	Target     string  `db:"target"`
	Host       string  `db:"host"`
	Request    string  `db:"request"`
	Version    string  `db:"version"`
	Created    bool    `db:"created"`
	Message    string  `db:"message"`
	Status     string  `db:"status"`
	Stage      string  `db:"stage"`
	Error      string  `db:"error"`
	Pruned     *string `db:"pruned"`
	StartedAt  string  `db:"started_at"`
	FinishedAt *string `db:"finished_at"`
}

func (s *SQLiteStore) CreateDeployRecord(ctx context.Context, record *release.DeployRecord) error {
	return createDeployRecord(ctx, s.db, record)
}

// FinishDeployRecord updates the record and, when nothing changed, looks it
// up again in the same transaction to tell a missing record from a finished one.
func (s *SQLiteStore) FinishDeployRecord(ctx context.Context, record *release.DeployRecord) error {
	return s.WithTx(ctx, func(tx Store) error {
		return tx.FinishDeployRecord(ctx, record)
	})
}

func (s *SQLiteStore) GetDeployRecord(ctx context.Context, id string) (*release.DeployRecord, error) {
	return getDeployRecord(ctx, s.db, id)
}

func (s *SQLiteStore) ListDeployRecords(ctx context.Context, target string, opts ListOptions) ([]release.DeployRecord, error) {
	return listDeployRecords(ctx, s.db, target, opts)
}

// =============================================================================
// Transaction Support
// =============================================================================

func (s *SQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return NewStoreError("WithTx", "", "", "failed to begin transaction", ErrTxFailed)
	}

	if err := fn(&txSQLiteStore{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return NewStoreError("WithTx", "", "", fmt.Sprintf("rollback failed after error: %v", err), ErrTxFailed)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return NewStoreError("WithTx", "", "", "failed to commit transaction", ErrTxFailed)
	}
	return nil
}

// txSQLiteStore implements Store within a transaction.
type txSQLiteStore struct {
	tx *sqlx.Tx
}

func (s *txSQLiteStore) CreateDeployRecord(ctx context.Context, record *release.DeployRecord) error {
	return createDeployRecord(ctx, s.tx, record)
}

func (s *txSQLiteStore) FinishDeployRecord(ctx context.Context, record *release.DeployRecord) error {
	return finishDeployRecord(ctx, s.tx, record)
}

func (s *txSQLiteStore) GetDeployRecord(ctx context.Context, id string) (*release.DeployRecord, error) {
	return getDeployRecord(ctx, s.tx, id)
}

func (s *txSQLiteStore) ListDeployRecords(ctx context.Context, target string, opts ListOptions) ([]release.DeployRecord, error) {
	return listDeployRecords(ctx, s.tx, target, opts)
}

func (s *txSQLiteStore) WithTx(_ context.Context, fn func(Store) error) error {
	return fn(s)
}

func (s *txSQLiteStore) Close() error {
	return nil
}

// =============================================================================
// Shared Implementation Functions
// =============================================================================

func createDeployRecord(ctx context.Context, exec executor, record *release.DeployRecord) error {
	row, err := recordToRow(record)
	if err != nil {
		return NewStoreError("CreateDeployRecord", entityDeployRecord, record.ID, err.Error(), ErrInvalidData)
	}

	query := `
		INSERT INTO deploy_records (
			id, target, host, request, version, created, message,
			status, stage, error, pruned, started_at, finished_at
		) VALUES (
			:id, :target, :host, :request, :version, :created, :message,
			:status, :stage, :error, :pruned, :started_at, :finished_at
		)`

	if _, err := exec.NamedExecContext(ctx, query, row); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: deploy_records.id") {
			return NewStoreError("CreateDeployRecord", entityDeployRecord, record.ID, "deploy record with this ID already exists", ErrDuplicateID)
		}
		return NewStoreError("CreateDeployRecord", entityDeployRecord, record.ID, err.Error(), err)
	}
	return nil
}

// finishDeployRecord stores the outcome of a running record.
func finishDeployRecord(ctx context.Context, exec executor, record *release.DeployRecord) error {
	if !record.IsFinished() {
		return NewStoreError("FinishDeployRecord", entityDeployRecord, record.ID, "record has no finish time", ErrInvalidData)
	}
	row, err := recordToRow(record)
	if err != nil {
		return NewStoreError("FinishDeployRecord", entityDeployRecord, record.ID, err.Error(), ErrInvalidData)
	}

	query := `
		UPDATE deploy_records SET
			status = :status, stage = :stage, error = :error,
			pruned = :pruned, finished_at = :finished_at
		WHERE id = :id AND finished_at IS NULL`

	result, err := exec.NamedExecContext(ctx, query, row)
	if err != nil {
		return NewStoreError("FinishDeployRecord", entityDeployRecord, record.ID, err.Error(), err)
	}

	if n, _ := result.RowsAffected(); n == 0 {
		if _, err := getDeployRecord(ctx, exec, record.ID); err != nil {
			return NewStoreError("FinishDeployRecord", entityDeployRecord, record.ID, "deploy record not found", ErrNotFound)
		}
		return NewStoreError("FinishDeployRecord", entityDeployRecord, record.ID, "deploy record already finished", ErrAlreadyFinished)
	}
	return nil
}

func getDeployRecord(ctx context.Context, exec executor, id string) (*release.DeployRecord, error) {
	query := `SELECT * FROM deploy_records WHERE id = ?`

	var row deployRecordRow
	if err := exec.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetDeployRecord", entityDeployRecord, id, "deploy record not found", ErrNotFound)
		}
		return nil, NewStoreError("GetDeployRecord", entityDeployRecord, id, err.Error(), err)
	}
	return rowToRecord(&row)
}

// listDeployRecords returns records newest first. An empty target lists all.
func listDeployRecords(ctx context.Context, exec executor, target string, opts ListOptions) ([]release.DeployRecord, error) {
	opts = opts.Normalize()

	var where []string
	var args []any
	if target != "" {
		where = append(where, "target = ?")
		args = append(args, target)
	}
	if opts.Host != "" {
		where = append(where, "host = ?")
		args = append(args, opts.Host)
	}

	query := `SELECT * FROM deploy_records`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY started_at DESC, rowid DESC LIMIT ? OFFSET ?`
	args = append(args, opts.Limit, opts.Offset)

	var rows []deployRecordRow
	if err := exec.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, NewStoreError("ListDeployRecords", entityDeployRecord, "", err.Error(), err)
	}

	records := make([]release.DeployRecord, 0, len(rows))
	for _, row := range rows {
		record, err := rowToRecord(&row)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	return records, nil
}

// =============================================================================
// Row Conversion
// =============================================================================

// timeFormat sorts lexically in time order for UTC values.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

func recordToRow(record *release.DeployRecord) (*deployRecordRow, error) {
	row := &deployRecordRow{
		ID:        record.ID,
		Target:    record.Target,
		Host:      record.Host,
		Request:   record.Request,
		Version:   record.Version,
		Created:   record.Created,
		Message:   record.Message,
		Status:    string(record.Status),
		Stage:     string(record.Stage),
		Error:     record.Error,
		StartedAt: record.StartedAt.UTC().Format(timeFormat),
	}

	if len(record.Pruned) > 0 {
		data, err := json.Marshal(record.Pruned)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize pruned versions: %w", err)
		}
		s := string(data)
		row.Pruned = &s
	}
	if record.FinishedAt != nil {
		s := record.FinishedAt.UTC().Format(timeFormat)
		row.FinishedAt = &s
	}
	return row, nil
}

func rowToRecord(row *deployRecordRow) (*release.DeployRecord, error) {
	startedAt, err := time.Parse(timeFormat, row.StartedAt)
	if err != nil {
		return nil, NewStoreError("rowToRecord", entityDeployRecord, row.ID, "failed to parse started_at", ErrInvalidData)
	}

	var finishedAt *time.Time
	if row.FinishedAt != nil && *row.FinishedAt != "" {
		t, err := time.Parse(timeFormat, *row.FinishedAt)
		if err != nil {
			return nil, NewStoreError("rowToRecord", entityDeployRecord, row.ID, "failed to parse finished_at", ErrInvalidData)
		}
		finishedAt = &t
	}

	var pruned []string
	if row.Pruned != nil && *row.Pruned != "" {
		if err := json.Unmarshal([]byte(*row.Pruned), &pruned); err != nil {
			return nil, NewStoreError("rowToRecord", entityDeployRecord, row.ID, "failed to parse pruned versions", ErrInvalidData)
		}
	}

	return &release.DeployRecord{
		ID:         row.ID,
		Target:     row.Target,
		Host:       row.Host,
		Request:    row.Request,
		Version:    row.Version,
		Created:    row.Created,
		Message:    row.Message,
		Status:     release.DeployStatus(row.Status),
		Stage:      release.Stage(row.Stage),
		Error:      row.Error,
		Pruned:     pruned,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
	}, nil
}
