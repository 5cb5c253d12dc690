package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/rexliu/ordo/pkg/core"
	"github.com/rexliu/ordo/pkg/ordering"
)

const schemaVersion = "1"

// Options tunes the connection pragmas.
type Options struct {
	JournalMode   string
	Synchronous   string
	BusyTimeoutMs int
}

func (o Options) withDefaults() Options {
	if o.JournalMode == "" {
		o.JournalMode = "WAL"
	}
	if o.Synchronous == "" {
		o.Synchronous = "NORMAL"
	}
	if o.BusyTimeoutMs <= 0 {
		o.BusyTimeoutMs = 5000
	}
	return o
}

// Store owns the SQLite database holding the ordered items.
type Store struct {
	db   *sql.DB
	path string
	opts Options
}

var _ ordering.Store = (*Store)(nil)

// Path returns the underlying SQLite file path.
func (s *Store) Path() string {
	return s.path
}

// Open initializes a SQLite database at path. SQLite allows one writer, so the
// pool is pinned to a single connection and transactions queue behind it.
func Open(path string, opts Options) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return &Store{db: db, path: path, opts: opts.withDefaults()}, nil
}

// Close releases database resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Init applies pragmas and the schema. It is safe to call on every start.
func (s *Store) Init(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("nil store")
	}
	pragmas := []string{
		fmt.Sprintf("PRAGMA journal_mode = %s;", s.opts.JournalMode),
		fmt.Sprintf("PRAGMA synchronous = %s;", s.opts.Synchronous),
		fmt.Sprintf("PRAGMA busy_timeout = %d;", s.opts.BusyTimeoutMs),
	}
	for _, stmt := range pragmas {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply pragma %q: %w", stmt, err)
		}
	}
	return s.applySchema(ctx)
}

func (s *Store) applySchema(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`INSERT OR IGNORE INTO meta(key,value) VALUES ('schemaVersion','` + schemaVersion + `');`,
		`CREATE TABLE IF NOT EXISTS items (
			id TEXT PRIMARY KEY,
			detail TEXT NOT NULL,
			numerator TEXT NOT NULL,
			denominator TEXT NOT NULL,
			frac_key TEXT NOT NULL UNIQUE,
			ord REAL NOT NULL,
			rank TEXT NOT NULL UNIQUE COLLATE BINARY,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_items_ord ON items(ord);`,
	}
	for _, stmt := range ddl {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// SchemaVersion reports the version recorded in the meta table.
func (s *Store) SchemaVersion(ctx context.Context) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'schemaVersion'`).Scan(&v)
	return v, err
}

const itemColumns = `id, detail, numerator, denominator, ord, rank, created_at, updated_at`

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// WithTx runs fn inside a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ordering.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(&sqlTx{q: tx}); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapConstraint(err)
	}
	return nil
}

// Get returns the item with id or core.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (core.Item, error) {
	return getItem(ctx, s.db, id)
}

// ListByOrder returns all items ordered by exact fraction. The float column
// gives SQLite a coarse order; equal floats are then resolved exactly.
func (s *Store) ListByOrder(ctx context.Context) ([]core.Item, error) {
	items, err := queryItems(ctx, s.db, `SELECT `+itemColumns+` FROM items ORDER BY ord, id`)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(i, j int) bool {
		if c := items[i].Fraction.Cmp(items[j].Fraction); c != 0 {
			return c < 0
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

// ListByRank returns all items ordered by rank.
func (s *Store) ListByRank(ctx context.Context) ([]core.Item, error) {
	return queryItems(ctx, s.db, `SELECT `+itemColumns+` FROM items ORDER BY rank`)
}

type sqlTx struct {
	q querier
}

func (t *sqlTx) Get(ctx context.Context, id string) (core.Item, error) {
	return getItem(ctx, t.q, id)
}

// Last returns the item with the greatest exact fraction. The float evaluation
// is monotone, so the maximum lies among the rows sharing the maximal ord.
func (t *sqlTx) Last(ctx context.Context) (core.Item, bool, error) {
	items, err := queryItems(ctx, t.q, `SELECT `+itemColumns+` FROM items WHERE ord = (SELECT MAX(ord) FROM items)`)
	if err != nil {
		return core.Item{}, false, err
	}
	if len(items) == 0 {
		return core.Item{}, false, nil
	}
	last := items[0]
	for _, it := range items[1:] {
		if it.Fraction.Cmp(last.Fraction) > 0 {
			last = it
		}
	}
	return last, true, nil
}

// Between looks for an item strictly inside (prev, next). Rank is compared in
// SQL directly; the float column only narrows the fraction candidates, which
// are then checked exactly.
func (t *sqlTx) Between(ctx context.Context, prev, next core.Item, exclude string) (core.Item, bool, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE id != ? AND ((rank > ? AND rank < ?) OR (ord >= ?`
	args := []any{exclude, prev.Rank, next.Rank, prev.Fraction.Float64()}
	if hi := next.Fraction.Float64(); !math.IsInf(hi, 1) {
		query += ` AND ord <= ?`
		args = append(args, hi)
	}
	items, err := queryItems(ctx, t.q, query+`))`, args...)
	if err != nil {
		return core.Item{}, false, err
	}
	for _, it := range items {
		if it.Within(prev, next) {
			return it, true, nil
		}
	}
	return core.Item{}, false, nil
}

func (t *sqlTx) Insert(ctx context.Context, item core.Item) error {
	_, err := t.q.ExecContext(ctx, `INSERT INTO items(`+itemColumns+`, frac_key) VALUES(?,?,?,?,?,?,?,?,?)`,
		item.ID, item.Detail, item.Fraction.Num.String(), item.Fraction.Den.String(),
		item.Order, item.Rank, item.CreatedAt, item.UpdatedAt, item.Fraction.Key())
	return mapConstraint(err)
}

func (t *sqlTx) Update(ctx context.Context, item core.Item) error {
	res, err := t.q.ExecContext(ctx, `
		UPDATE items
		SET detail = ?, numerator = ?, denominator = ?, frac_key = ?, ord = ?, rank = ?, updated_at = ?
		WHERE id = ?`,
		item.Detail, item.Fraction.Num.String(), item.Fraction.Den.String(), item.Fraction.Key(),
		item.Order, item.Rank, item.UpdatedAt, item.ID)
	return wrapRowsAffected(res, mapConstraint(err))
}

func (t *sqlTx) Delete(ctx context.Context, id string) (bool, error) {
	res, err := t.q.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (core.Item, error) {
	var (
		it       core.Item
		num, den string
	)
	if err := row.Scan(&it.ID, &it.Detail, &num, &den, &it.Order, &it.Rank, &it.CreatedAt, &it.UpdatedAt); err != nil {
		return core.Item{}, err
	}
	frac, err := core.ParseFraction(num, den)
	if err != nil {
		return core.Item{}, fmt.Errorf("item %s: %w", it.ID, err)
	}
	it.Fraction = frac
	return it, nil
}

func getItem(ctx context.Context, q querier, id string) (core.Item, error) {
	row := q.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Item{}, core.ErrNotFound
	}
	return it, err
}

func queryItems(ctx context.Context, q querier, query string, args ...any) ([]core.Item, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]core.Item, 0)
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// mapConstraint turns uniqueness violations into core.ErrConflict.
func mapConstraint(err error) error {
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %v", core.ErrConflict, err)
	}
	return err
}

func isUniqueViolation(err error) bool {
	var se *msqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func wrapRowsAffected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return core.ErrNotFound
	}
	return nil
}
