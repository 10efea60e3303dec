package store

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"taxiflow/logger"
	"taxiflow/models"
)

var postgresDialect = dialect{
	types: map[colType]string{
		typeKind:      "TEXT NOT NULL",
		typeInt:       "INTEGER NOT NULL",
		typeFloat:     "DOUBLE PRECISION NOT NULL",
		typeBool:      "BOOLEAN NOT NULL",
		typeTimestamp: "TIMESTAMP NOT NULL",
		typeDate:      "DATE NOT NULL",
	},
	placeholder: dollar,
	dateArg:     dateValue,
	zero: func(t colType) string {
		if t == typeFloat {
			return "0::double precision"
		}
		return "0::integer"
	},
	createView: "CREATE OR REPLACE VIEW",
}

// pgRows gives pgx.Rows the Close() error of rowCursor.
type pgRows struct{ pgx.Rows }

func (r pgRows) Close() error {
	r.Rows.Close()
	return nil
}

// PostgresStore writes with COPY and keeps a btree on the ordering key,
// which is also the natural range partition key.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  *logger.Log
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	s := &PostgresStore{pool: pool, log: logger.GetLogger()}
	if err := s.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	cfg := pool.Config().ConnConfig
	s.log.WithComponent("postgres_store").WithFields(logger.Fields{
		"host":     cfg.Host,
		"database": cfg.Database,
	}).Info("connected to postgres")
	return s, nil
}

func (s *PostgresStore) Name() string { return "postgres" }

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

func orderingIndexSQL(table string) string {
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_ordering_idx ON %s (%s)",
		table, table, strings.Join(orderingColumns, ", "))
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	for _, kind := range models.Kinds {
		for _, stmt := range []string{createTableSQL(postgresDialect, kind.Table()), orderingIndexSQL(kind.Table())} {
			if _, err := s.pool.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("create %s: %w", kind.Table(), err)
			}
		}
	}
	if _, err := s.pool.Exec(ctx, createViewSQL(postgresDialect)); err != nil {
		return fmt.Errorf("create view %s: %w", models.UnionView, err)
	}
	return nil
}

func (s *PostgresStore) TableExists(ctx context.Context, kind models.TaxiKind) (bool, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, "SELECT to_regclass($1) IS NOT NULL", kind.Table()).Scan(&exists); err != nil {
		return false, fmt.Errorf("check table %s: %w", kind.Table(), err)
	}
	return exists, nil
}

func (s *PostgresStore) Append(ctx context.Context, kind models.TaxiKind, records []models.CanonicalTripRecord) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([][]any, len(records))
	for i := range records {
		rec := records[i]
		rec.TaxiKind = kind
		rows[i] = rec.Values()
	}
	n, err := s.pool.CopyFrom(ctx, pgx.Identifier{kind.Table()}, models.CanonicalColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("copy into %s: %w", kind.Table(), err)
	}
	if n != int64(len(records)) {
		return fmt.Errorf("copy into %s: wrote %d of %d rows", kind.Table(), n, len(records))
	}
	return nil
}

func (s *PostgresStore) query(q string, args []any) func(ctx context.Context) (rowCursor, error) {
	return func(ctx context.Context) (rowCursor, error) {
		rows, err := s.pool.Query(ctx, q, args...)
		if err != nil {
			return nil, fmt.Errorf("query postgres: %w", err)
		}
		return pgRows{rows}, nil
	}
}

func (s *PostgresStore) Scan(ctx context.Context, kind models.TaxiKind, r models.DateRange) iter.Seq2[models.CanonicalTripRecord, error] {
	q, args := scanSQL(postgresDialect, kind.Table(), r)
	return rowIter(ctx, s.query(q, args), scanCanonical)
}

func (s *PostgresStore) ScanUnion(ctx context.Context, r models.DateRange) iter.Seq2[models.CanonicalTripRecord, error] {
	q, args := scanSQL(postgresDialect, models.UnionView, r)
	return rowIter(ctx, s.query(q, args), scanCanonical)
}

func (s *PostgresStore) Stats(ctx context.Context, kind models.TaxiKind) (TableStats, error) {
	st := TableStats{Table: kind.Table()}
	var minDate, maxDate *time.Time
	if err := s.pool.QueryRow(ctx, statsSQL(kind.Table())).Scan(&st.Rows, &minDate, &maxDate, &st.Days); err != nil {
		return st, fmt.Errorf("stats %s: %w", kind.Table(), err)
	}
	if minDate != nil {
		st.MinDate = minDate.UTC()
	}
	if maxDate != nil {
		st.MaxDate = maxDate.UTC()
	}
	return st, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
