package store

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"taxiflow/logger"
	"taxiflow/models"
)

// SQLite has no datetime type: timestamps are stored as unix microseconds
// and pickup_date as YYYY-MM-DD text, which sorts and compares by date.
var sqliteDialect = dialect{
	types: map[colType]string{
		typeKind:      "TEXT NOT NULL",
		typeInt:       "INTEGER NOT NULL",
		typeFloat:     "REAL NOT NULL",
		typeBool:      "INTEGER NOT NULL",
		typeTimestamp: "INTEGER NOT NULL",
		typeDate:      "TEXT NOT NULL",
	},
	placeholder: questionMark,
	dateArg:     dateString,
	zero:        numericZero,
	createView:  "CREATE VIEW IF NOT EXISTS",
}

// SQLiteStore is the embedded store used for local runs and tests.
type SQLiteStore struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
	log  *logger.Log
}

func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000", "PRAGMA synchronous=NORMAL"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite %s: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db, path: path, log: logger.GetLogger()}
	if err := s.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}
	s.log.WithComponent("sqlite_store").WithFields(logger.Fields{"path": path}).Info("sqlite store opened")
	return s, nil
}

func (s *SQLiteStore) Name() string { return "sqlite" }

func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	return nil
}

func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	for _, kind := range models.Kinds {
		stmts := []string{
			createTableSQL(sqliteDialect, kind.Table()),
			fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_ordering_idx ON %s (%s)",
				kind.Table(), kind.Table(), strings.Join(orderingColumns, ", ")),
		}
		for _, stmt := range stmts {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("create %s: %w", kind.Table(), err)
			}
		}
	}
	if _, err := s.db.ExecContext(ctx, createViewSQL(sqliteDialect)); err != nil {
		return fmt.Errorf("create view %s: %w", models.UnionView, err)
	}
	return nil
}

func (s *SQLiteStore) TableExists(ctx context.Context, kind models.TaxiKind) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?", kind.Table()).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check table %s: %w", kind.Table(), err)
	}
	return n > 0, nil
}

func sqliteValues(c *models.CanonicalTripRecord) []any {
	v := c.Values()
	v[2] = c.PickupDatetime.UnixMicro()
	v[3] = c.DropoffDatetime.UnixMicro()
	v[24] = c.PartitionDate()
	return v
}

func (s *SQLiteStore) Append(ctx context.Context, kind models.TaxiKind, records []models.CanonicalTripRecord) error {
	if len(records) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	marks := strings.TrimSuffix(strings.Repeat("?, ", len(models.CanonicalColumns)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		kind.Table(), strings.Join(models.CanonicalColumns, ", "), marks))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := range records {
		rec := records[i]
		rec.TaxiKind = kind
		if _, err := stmt.ExecContext(ctx, sqliteValues(&rec)...); err != nil {
			return fmt.Errorf("insert row %d into %s: %w", i, kind.Table(), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", kind.Table(), err)
	}
	return nil
}

func scanSQLite(rows rowCursor) (models.CanonicalTripRecord, error) {
	var rec models.CanonicalTripRecord
	var kind, date string
	var pickup, dropoff int64
	targets := rec.ScanTargets(&kind)
	targets[2], targets[3], targets[24] = &pickup, &dropoff, &date
	if err := rows.Scan(targets...); err != nil {
		return rec, err
	}
	pd, err := time.Parse(models.DateLayout, date)
	if err != nil {
		return rec, fmt.Errorf("pickup_date %q: %w", date, err)
	}
	rec.PickupDatetime = time.UnixMicro(pickup)
	rec.DropoffDatetime = time.UnixMicro(dropoff)
	rec.PickupDate = pd
	restoreKind(&rec, kind)
	return rec, nil
}

func (s *SQLiteStore) query(q string, args []any) func(ctx context.Context) (rowCursor, error) {
	return func(ctx context.Context) (rowCursor, error) {
		rows, err := s.db.QueryContext(ctx, q, args...)
		if err != nil {
			return nil, fmt.Errorf("query sqlite: %w", err)
		}
		return rows, nil
	}
}

func (s *SQLiteStore) Scan(ctx context.Context, kind models.TaxiKind, r models.DateRange) iter.Seq2[models.CanonicalTripRecord, error] {
	q, args := scanSQL(sqliteDialect, kind.Table(), r)
	return rowIter(ctx, s.query(q, args), scanSQLite)
}

func (s *SQLiteStore) ScanUnion(ctx context.Context, r models.DateRange) iter.Seq2[models.CanonicalTripRecord, error] {
	q, args := scanSQL(sqliteDialect, models.UnionView, r)
	return rowIter(ctx, s.query(q, args), scanSQLite)
}

func (s *SQLiteStore) Stats(ctx context.Context, kind models.TaxiKind) (TableStats, error) {
	st := TableStats{Table: kind.Table()}
	var minDate, maxDate sql.NullString
	if err := s.db.QueryRowContext(ctx, statsSQL(kind.Table())).Scan(&st.Rows, &minDate, &maxDate, &st.Days); err != nil {
		return st, fmt.Errorf("stats %s: %w", kind.Table(), err)
	}
	if minDate.Valid {
		st.MinDate, _ = time.Parse(models.DateLayout, minDate.String)
	}
	if maxDate.Valid {
		st.MaxDate, _ = time.Parse(models.DateLayout, maxDate.String)
	}
	return st, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
