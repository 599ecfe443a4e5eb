package export

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
	"github.com/smallbiznis/patronage/internal/config"
	"github.com/smallbiznis/patronage/pkg/db"
)

const dialectPostgres = "postgres"

// Table is a report result: column names in select order and one value
// slice per row.
type Table struct {
	Columns []string
	Rows    [][]any
}

// Store runs the export queries on a read connection separate from the
// application pool.
type Store struct {
	db *sqlx.DB
}

func NewStore(conn *sqlx.DB) *Store {
	return &Store{db: conn}
}

// Open connects to the configured postgres database.
func Open(ctx context.Context, cfg config.Config) (*sqlx.DB, error) {
	conn, err := sqlx.Open("postgres", db.PostgresDSN(db.FromAppConfig(cfg)))
	if err != nil {
		return nil, fmt.Errorf("open export database: %w", err)
	}
	conn.SetMaxOpenConns(len(Reports))
	conn.SetConnMaxIdleTime(time.Minute)
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping export database: %w", err)
	}
	return conn, nil
}

func latestTransactionQuery() (string, error) {
	query, _, err := goqu.Dialect(dialectPostgres).
		From("transactions").
		Select(goqu.MAX("created_at")).
		ToSQL()
	return query, err
}

// LatestTransactionAt returns the creation time of the newest transaction.
// ok is false when the table is empty.
func (s *Store) LatestTransactionAt(ctx context.Context) (time.Time, bool, error) {
	query, err := latestTransactionQuery()
	if err != nil {
		return time.Time{}, false, err
	}
	var latest sql.NullTime
	if err := s.db.GetContext(ctx, &latest, query); err != nil {
		return time.Time{}, false, err
	}
	return latest.Time, latest.Valid, nil
}

// Query runs a report with named parameters.
func (s *Store) Query(ctx context.Context, query string, params map[string]any) (*Table, error) {
	rows, err := s.db.NamedQueryContext(ctx, query, params)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	table := &Table{Columns: columns}
	for rows.Next() {
		values, err := rows.SliceScan()
		if err != nil {
			return nil, err
		}
		table.Rows = append(table.Rows, values)
	}
	return table, rows.Err()
}
