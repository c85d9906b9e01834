package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Eigen-Consulting/iLEAPP/internal/common"
	"github.com/mattn/go-sqlite3"
	gocache "github.com/patrickmn/go-cache"
)

// DefaultSchemaCacheTTL is how long table and column lists are reused.
const DefaultSchemaCacheTTL = 10 * time.Minute

// Querier is the row-fetch surface used by the correlator.
type Querier interface {
	Query(ctx context.Context, dbPath, query string, args ...any) (*sql.Rows, error)
	TableExists(ctx context.Context, dbPath, table string) (bool, error)
	Columns(ctx context.Context, dbPath, table string) ([]string, error)
}

// SQLiteReader opens evidence databases read-only and keeps one handle per path.
// Nothing it does writes to the source files.
type SQLiteReader struct {
	schema *gocache.Cache
	dbs    map[string]*sql.DB
	closed bool
	mu     sync.Mutex
}

// NewSQLiteReader creates a reader whose schema probes are cached for ttl.
// A ttl of zero uses DefaultSchemaCacheTTL.
func NewSQLiteReader(ttl time.Duration) *SQLiteReader {
	if ttl <= 0 {
		ttl = DefaultSchemaCacheTTL
	}
	return &SQLiteReader{
		schema: gocache.New(ttl, 2*ttl),
		dbs:    make(map[string]*sql.DB),
	}
}

// Close closes every handle opened by the reader.
func (r *SQLiteReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for path, db := range r.dbs {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", path, err))
		}
	}
	r.dbs = make(map[string]*sql.DB)
	r.schema.Flush()
	r.closed = true
	return errors.Join(errs...)
}

// Query runs query against the database at dbPath. The caller closes the rows.
func (r *SQLiteReader) Query(ctx context.Context, dbPath, query string, args ...any) (*sql.Rows, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	db, err := r.open(dbPath)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(dbPath, err)
	}
	return rows, nil
}

// TableExists reports whether table exists in the database, ignoring case.
func (r *SQLiteReader) TableExists(ctx context.Context, dbPath, table string) (bool, error) {
	if err := validateTable(table); err != nil {
		return false, err
	}
	tables, err := r.Tables(ctx, dbPath)
	if err != nil {
		return false, err
	}
	_, ok := tables[strings.ToLower(table)]
	return ok, nil
}

// Tables returns the lower-cased set of table names in the database.
func (r *SQLiteReader) Tables(ctx context.Context, dbPath string) (map[string]struct{}, error) {
	key := "tables\x00" + dbPath
	if cached, ok := r.schema.Get(key); ok {
		return cached.(map[string]struct{}), nil
	}

	rows, err := r.Query(ctx, dbPath, `SELECT name FROM sqlite_master WHERE type IN ('table', 'view')`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tables := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, classify(dbPath, err)
		}
		tables[strings.ToLower(name)] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, classify(dbPath, err)
	}

	r.schema.SetDefault(key, tables)
	return tables, nil
}

// Columns returns the column names of table in declaration order.
// A missing table yields common.ErrTableMissing.
func (r *SQLiteReader) Columns(ctx context.Context, dbPath, table string) ([]string, error) {
	if err := validateTable(table); err != nil {
		return nil, err
	}

	key := "columns\x00" + dbPath + "\x00" + strings.ToLower(table)
	if cached, ok := r.schema.Get(key); ok {
		return cached.([]string), nil
	}

	rows, err := r.Query(ctx, dbPath, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var (
			cid       int
			name      string
			colType   sql.NullString
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return nil, classify(dbPath, err)
		}
		columns = append(columns, name)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(dbPath, err)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: %s in %s", common.ErrTableMissing, table, dbPath)
	}

	r.schema.SetDefault(key, columns)
	return columns, nil
}

// HasColumn reports whether column is in columns, ignoring case.
func HasColumn(columns []string, column string) bool {
	for _, c := range columns {
		if strings.EqualFold(c, column) {
			return true
		}
	}
	return false
}

func (r *SQLiteReader) open(dbPath string) (*sql.DB, error) {
	if err := validateString(dbPath, "dbPath"); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrReaderClosed
	}
	if db, ok := r.dbs[dbPath]; ok {
		return db, nil
	}

	db, err := sql.Open("sqlite3", readOnlyDSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, classify(dbPath, err)
	}

	r.dbs[dbPath] = db
	return db, nil
}

// readOnlyDSN builds a SQLite URI that never creates or modifies the file.
func readOnlyDSN(dbPath string) string {
	abs, err := filepath.Abs(dbPath)
	if err != nil {
		abs = dbPath
	}
	u := url.URL{
		Scheme:   "file",
		Path:     filepath.ToSlash(abs),
		RawQuery: "mode=ro&_busy_timeout=5000",
	}
	return u.String()
}

// classify maps driver errors onto the shared sentinels.
func classify(dbPath string, err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) && (se.Code == sqlite3.ErrNotADB || se.Code == sqlite3.ErrCorrupt) {
		return fmt.Errorf("%w: %s: %v", common.ErrDatabaseCorrupted, dbPath, err)
	}
	if strings.Contains(err.Error(), "no such table") {
		return fmt.Errorf("%w: %s: %v", common.ErrTableMissing, dbPath, err)
	}
	return fmt.Errorf("query %s: %w", dbPath, err)
}
