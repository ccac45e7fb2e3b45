package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/samber/oops"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// Ensure Store implements the interface.
var _ driven.SemanticStore = (*Store)(nil)

// DatabaseFile is the file name created inside the data directory.
const DatabaseFile = "semantic.db"

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the SQLite-backed semantic store.
//
// Transactions travel in the context returned by Begin. Calls made with any
// other context use the pool and never observe uncommitted writes.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for created timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.sercha-rag/data/semantic.db.
func NewStore(dataDir string, opts ...Option) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".sercha-rag", "data")
	}

	// Ensure directory exists
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DatabaseFile)

	// WAL for concurrent readers; foreign_keys applies to every pooled connection.
	// Immediate transactions take the write lock up front, so max(id)+1
	// assignment cannot race another writer.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
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

// ==================== Transactions ====================

type txKey struct{}

// txState is one database transaction shared by every nested Begin on the
// same context chain.
type txState struct {
	store *Store
	mu    sync.Mutex
	tx    *sql.Tx
	depth int
}

// txFrom returns the transaction carried by ctx for this store, if any.
func (s *Store) txFrom(ctx context.Context) *txState {
	st, _ := ctx.Value(txKey{}).(*txState)
	if st == nil || st.store != s {
		return nil
	}
	return st
}

// Begin opens a transaction and returns a context carrying it. When ctx
// already carries an open transaction it is joined by incrementing the depth.
func (s *Store) Begin(ctx context.Context) (context.Context, error) {
	if st := s.txFrom(ctx); st != nil {
		st.mu.Lock()
		if st.depth > 0 {
			st.depth++
			depth := st.depth
			st.mu.Unlock()
			logger.Debug("tx begin depth=%d", depth)
			return ctx, nil
		}
		st.mu.Unlock()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ctx, oops.Code(codeTransaction).In("sqlite").Wrapf(wrapSentinel(domain.ErrTransaction, err), "begin")
	}
	logger.Debug("tx begin depth=1")
	return context.WithValue(ctx, txKey{}, &txState{store: s, tx: tx, depth: 1}), nil
}

// Commit decrements the depth and commits when it reaches zero.
// A failed commit leaves no transaction open and reports domain.ErrTransaction.
func (s *Store) Commit(ctx context.Context) error {
	st := s.txFrom(ctx)
	if st == nil {
		return oops.Code(codeTransaction).In("sqlite").Wrapf(domain.ErrTransaction, "commit without an open transaction")
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.depth == 0 {
		return oops.Code(codeTransaction).In("sqlite").Wrapf(domain.ErrTransaction, "commit without an open transaction")
	}

	st.depth--
	if st.depth > 0 {
		logger.Debug("tx commit deferred depth=%d", st.depth)
		return nil
	}

	if err := st.tx.Commit(); err != nil {
		_ = st.tx.Rollback()
		return oops.Code(codeTransaction).In("sqlite").Wrapf(wrapSentinel(domain.ErrTransaction, err), "commit")
	}
	logger.Debug("tx committed")
	return nil
}

// Rollback discards the transaction carried by ctx at any depth and resets
// the depth. It is a no-op when no transaction is open.
func (s *Store) Rollback(ctx context.Context) error {
	st := s.txFrom(ctx)
	if st == nil {
		return nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.depth == 0 {
		return nil
	}

	st.depth = 0
	logger.Debug("tx rolled back")
	if err := st.tx.Rollback(); err != nil {
		return oops.Code(codeTransaction).In("sqlite").Wrapf(wrapSentinel(domain.ErrTransaction, err), "rollback")
	}
	return nil
}

// Depth returns the nesting depth of the transaction carried by ctx.
func (s *Store) Depth(ctx context.Context) int {
	st := s.txFrom(ctx)
	if st == nil {
		return 0
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.depth
}

// WithinTx runs fn inside a (possibly nested) transaction. fn receives the
// context carrying it. Any error from fn rolls back the whole transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	txCtx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(txCtx); err != nil {
		_ = s.Rollback(txCtx)
		return err
	}
	return s.Commit(txCtx)
}

// conn returns the transaction carried by ctx, or the pool when there is none.
// A finished transaction is still returned so late writes fail with
// sql.ErrTxDone instead of silently autocommitting.
func (s *Store) conn(ctx context.Context) querier {
	if st := s.txFrom(ctx); st != nil {
		return st.tx
	}
	return s.db
}

// ==================== Migrations ====================

// migrate runs all pending migrations and records each applied version.
func (s *Store) migrate(fsys embed.FS) error {
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
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_semantic.up.sql" -> 1
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

		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
		logger.Debug("applied migration %s", name)
	}

	return nil
}

// SchemaVersion returns the highest applied migration version.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v)
	return v, err
}
