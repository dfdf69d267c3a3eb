package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/openleg-sync/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/openleg-sync/internal/core/domain"
	"github.com/custodia-labs/openleg-sync/internal/core/ports/driven"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store is a unified SQLite-based storage that provides access to
// all store interfaces through wrapper types.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.openleg-sync/data/openleg.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".openleg-sync", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "openleg.db")

	// WAL lets the status command read while importers write.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// CursorStore returns a CursorStore backed by this store.
func (s *Store) CursorStore() driven.CursorStore {
	return &cursorStore{store: s}
}

// RecordStore returns a RecordStore backed by this store.
func (s *Store) RecordStore() driven.RecordStore {
	return &recordStore{store: s}
}

// RunStore returns a RunStore backed by this store.
func (s *Store) RunStore() driven.RunStore {
	return &runStore{store: s}
}

// SchedulerStore returns a SchedulerStore backed by this store.
func (s *Store) SchedulerStore() driven.SchedulerStore {
	return &schedulerStore{store: s}
}

// migrate runs all pending migrations and records each applied version.
func (s *Store) migrate(fsys fs.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if name := entry.Name(); strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_initial.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning migration %s: %w", name, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %s: %w", name, err)
		}
	}

	return nil
}

// SchemaVersion returns the highest applied migration version.
func (s *Store) SchemaVersion() (int, error) {
	var v int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v); err != nil {
		return 0, fmt.Errorf("getting schema version: %w", err)
	}
	return v, nil
}

// ==================== Cursor Store ====================

// cursorStore implements driven.CursorStore.
type cursorStore struct {
	store *Store
}

var _ driven.CursorStore = (*cursorStore)(nil)

// Save stores or updates a cursor.
func (s *cursorStore) Save(ctx context.Context, c domain.SyncCursor) error {
	if c.ImporterID == "" {
		return domain.ErrInvalidInput
	}
	counts, err := json.Marshal(c.LastCounts)
	if err != nil {
		return fmt.Errorf("marshalling counts: %w", err)
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO sync_cursors (importer_id, watermark, last_token, last_success_at,
			last_attempt_at, last_error, last_error_class, last_counts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(importer_id) DO UPDATE SET
			watermark = excluded.watermark,
			last_token = excluded.last_token,
			last_success_at = excluded.last_success_at,
			last_attempt_at = excluded.last_attempt_at,
			last_error = excluded.last_error,
			last_error_class = excluded.last_error_class,
			last_counts = excluded.last_counts
	`, c.ImporterID, formatNullableTime(c.Watermark), nullString(c.LastToken),
		formatNullableTime(c.LastSuccessAt), formatNullableTime(c.LastAttemptAt),
		nullString(c.LastError), nullString(string(c.LastErrorClass)), string(counts))

	if err != nil {
		return fmt.Errorf("saving cursor: %w", err)
	}
	return nil
}

const cursorColumns = `importer_id, watermark, last_token, last_success_at,
	last_attempt_at, last_error, last_error_class, last_counts`

// Get retrieves the cursor for an importer.
func (s *cursorStore) Get(ctx context.Context, importerID string) (*domain.SyncCursor, error) {
	row := s.store.db.QueryRowContext(ctx,
		"SELECT "+cursorColumns+" FROM sync_cursors WHERE importer_id = ?", importerID)

	c, err := scanCursor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// List returns all cursors ordered by importer id.
func (s *cursorStore) List(ctx context.Context) ([]domain.SyncCursor, error) {
	rows, err := s.store.db.QueryContext(ctx,
		"SELECT "+cursorColumns+" FROM sync_cursors ORDER BY importer_id")
	if err != nil {
		return nil, fmt.Errorf("querying cursors: %w", err)
	}
	defer rows.Close()

	var cursors []domain.SyncCursor //nolint:prealloc // size unknown from query
	for rows.Next() {
		c, err := scanCursor(rows)
		if err != nil {
			return nil, err
		}
		cursors = append(cursors, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cursors: %w", err)
	}
	return cursors, nil
}

// Delete removes the cursor for an importer.
func (s *cursorStore) Delete(ctx context.Context, importerID string) error {
	_, err := s.store.db.ExecContext(ctx, "DELETE FROM sync_cursors WHERE importer_id = ?", importerID)
	if err != nil {
		return fmt.Errorf("deleting cursor: %w", err)
	}
	return nil
}

// Acquire takes or renews the run lease in cursor_locks. The upsert only
// overwrites a row owned by the same owner or one gone stale, so a zero
// row count means another process holds the lease.
func (s *cursorStore) Acquire(ctx context.Context, importerID, owner string, now time.Time, ttl time.Duration) error {
	if importerID == "" || owner == "" {
		return domain.ErrInvalidInput
	}
	res, err := s.store.db.ExecContext(ctx, `
		INSERT INTO cursor_locks (importer_id, owner, renewed_at)
		VALUES (?, ?, ?)
		ON CONFLICT(importer_id) DO UPDATE SET
			owner = excluded.owner,
			renewed_at = excluded.renewed_at
		WHERE cursor_locks.owner = excluded.owner OR cursor_locks.renewed_at <= ?
	`, importerID, owner,
		now.UTC().Format(timeLayout),
		now.Add(-ttl).UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("acquiring cursor lock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("acquiring cursor lock: %w", err)
	}
	if n == 0 {
		return domain.ErrCursorConflict
	}
	return nil
}

// Release deletes the lease row if owner still holds it.
func (s *cursorStore) Release(ctx context.Context, importerID, owner string) error {
	_, err := s.store.db.ExecContext(ctx,
		"DELETE FROM cursor_locks WHERE importer_id = ? AND owner = ?", importerID, owner)
	if err != nil {
		return fmt.Errorf("releasing cursor lock: %w", err)
	}
	return nil
}

// ==================== Record Store ====================

// recordStore implements driven.RecordStore.
type recordStore struct {
	store *Store
}

var _ driven.RecordStore = (*recordStore)(nil)

const recordColumns = "id, bundle, identity_key, fields, created_at, changed_at"

// FindByIdentity looks up a record by bundle and identity key.
func (s *recordStore) FindByIdentity(ctx context.Context, bundle, identityKey string) (*domain.LocalRecord, error) {
	row := s.store.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM local_records WHERE bundle = ? AND identity_key = ?",
		bundle, identityKey)
	return scanRecordRow(row)
}

// Get retrieves a record by id.
func (s *recordStore) Get(ctx context.Context, id int64) (*domain.LocalRecord, error) {
	row := s.store.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM local_records WHERE id = ?", id)
	return scanRecordRow(row)
}

// Create inserts a new record and assigns its id.
func (s *recordStore) Create(ctx context.Context, bundle, identityKey string, fields map[string]any) (*domain.LocalRecord, error) {
	if bundle == "" || identityKey == "" {
		return nil, domain.ErrInvalidInput
	}
	data, err := marshalFields(fields)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC().Format(timeLayout)

	res, err := s.store.db.ExecContext(ctx, `
		INSERT INTO local_records (bundle, identity_key, fields, created_at, changed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(bundle, identity_key) DO NOTHING
	`, bundle, identityKey, data, now, now)
	if err != nil {
		return nil, fmt.Errorf("creating record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("creating record: %w", err)
	}
	if n == 0 {
		return nil, domain.ErrAlreadyExists
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading record id: %w", err)
	}
	return s.Get(ctx, id)
}

// Update replaces the fields of an existing record. The identity key is
// never written.
func (s *recordStore) Update(ctx context.Context, id int64, fields map[string]any) (*domain.LocalRecord, error) {
	data, err := marshalFields(fields)
	if err != nil {
		return nil, err
	}
	res, err := s.store.db.ExecContext(ctx,
		"UPDATE local_records SET fields = ?, changed_at = ? WHERE id = ?",
		data, time.Now().UTC().Format(timeLayout), id)
	if err != nil {
		return nil, fmt.Errorf("updating record: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("updating record: %w", err)
	} else if n == 0 {
		return nil, domain.ErrNotFound
	}
	return s.Get(ctx, id)
}

// Count returns the number of records in a bundle.
func (s *recordStore) Count(ctx context.Context, bundle string) (int, error) {
	var n int
	err := s.store.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM local_records WHERE bundle = ?", bundle).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting records: %w", err)
	}
	return n, nil
}

// ==================== Run Store ====================

// runStore implements driven.RunStore.
type runStore struct {
	store *Store
}

var _ driven.RunStore = (*runStore)(nil)

// RecordRun stores a finished run summary.
func (s *runStore) RecordRun(ctx context.Context, r domain.RunSummary) error {
	if r.RunID == "" || r.ImporterID == "" {
		return domain.ErrInvalidInput
	}
	counts, err := json.Marshal(r.RunCounts)
	if err != nil {
		return fmt.Errorf("marshalling counts: %w", err)
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO import_runs (run_id, importer_id, mode, state, started_at, finished_at,
			counts, terminal_error, error_class)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			state = excluded.state,
			finished_at = excluded.finished_at,
			counts = excluded.counts,
			terminal_error = excluded.terminal_error,
			error_class = excluded.error_class
	`, r.RunID, r.ImporterID, string(r.Mode), string(r.State),
		r.Started.UTC().Format(timeLayout), formatNullableTime(r.Finished),
		string(counts), nullString(r.TerminalError), nullString(string(r.ErrorClass)))

	if err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	return nil
}

// ListRuns returns recent runs, most recent first.
func (s *runStore) ListRuns(ctx context.Context, importerID string, limit int) ([]domain.RunSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT run_id, importer_id, mode, state, started_at, finished_at,
			counts, terminal_error, error_class
		FROM import_runs
		WHERE ? = '' OR importer_id = ?
		ORDER BY started_at DESC
		LIMIT ?
	`, importerID, importerID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.RunSummary //nolint:prealloc // size unknown from query
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return runs, nil
}

// PruneRuns keeps the most recent 'keep' runs per importer.
func (s *runStore) PruneRuns(ctx context.Context, keep int) error {
	_, err := s.store.db.ExecContext(ctx, `
		DELETE FROM import_runs
		WHERE run_id NOT IN (
			SELECT run_id FROM (
				SELECT run_id, ROW_NUMBER() OVER (PARTITION BY importer_id ORDER BY started_at DESC) AS rn
				FROM import_runs
			) WHERE rn <= ?
		)
	`, keep)
	if err != nil {
		return fmt.Errorf("pruning runs: %w", err)
	}
	return nil
}

// ==================== Helper Functions ====================

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanCursor(row scanner) (*domain.SyncCursor, error) {
	var c domain.SyncCursor
	var watermark, token, success, attempt, lastErr, class sql.NullString
	var counts string

	if err := row.Scan(&c.ImporterID, &watermark, &token, &success,
		&attempt, &lastErr, &class, &counts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning cursor: %w", err)
	}

	c.Watermark = parseNullableTime(watermark)
	c.LastToken = token.String
	c.LastSuccessAt = parseNullableTime(success)
	c.LastAttemptAt = parseNullableTime(attempt)
	c.LastError = lastErr.String
	c.LastErrorClass = domain.ErrorClass(class.String)
	if err := json.Unmarshal([]byte(counts), &c.LastCounts); err != nil {
		return nil, fmt.Errorf("unmarshalling cursor counts: %w", err)
	}
	return &c, nil
}

func scanRecordRow(row *sql.Row) (*domain.LocalRecord, error) {
	var r domain.LocalRecord
	var fields, created, changed string

	if err := row.Scan(&r.ID, &r.Bundle, &r.IdentityKey, &fields, &created, &changed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning record: %w", err)
	}

	r.Fields = make(map[string]any)
	if err := json.Unmarshal([]byte(fields), &r.Fields); err != nil {
		return nil, fmt.Errorf("unmarshalling record fields: %w", err)
	}
	r.CreatedAt = parseTime(created)
	r.ChangedAt = parseTime(changed)
	return &r, nil
}

func scanRun(rows *sql.Rows) (*domain.RunSummary, error) {
	var r domain.RunSummary
	var mode, state, started, counts string
	var finished, terminal, class sql.NullString

	if err := rows.Scan(&r.RunID, &r.ImporterID, &mode, &state, &started, &finished,
		&counts, &terminal, &class); err != nil {
		return nil, fmt.Errorf("scanning run: %w", err)
	}

	r.Mode = domain.RunMode(mode)
	r.State = domain.RunState(state)
	r.Started = parseTime(started)
	r.Finished = parseNullableTime(finished)
	r.TerminalError = terminal.String
	r.ErrorClass = domain.ErrorClass(class.String)
	if err := json.Unmarshal([]byte(counts), &r.RunCounts); err != nil {
		return nil, fmt.Errorf("unmarshalling run counts: %w", err)
	}
	return &r, nil
}

func marshalFields(fields map[string]any) (string, error) {
	if fields == nil {
		return "{}", nil
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("marshalling fields: %w", err)
	}
	return string(data), nil
}

// formatNullableTime formats a time in UTC, or returns nil for zero time.
func formatNullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

// parseNullableTime returns zero time if the string is null or invalid.
func parseNullableTime(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	return parseTime(s.String)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// nullString returns nil for empty strings, otherwise the string.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// boolToInt converts a bool to 1 (true) or 0 (false).
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
