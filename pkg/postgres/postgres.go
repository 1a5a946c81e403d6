// Package postgres implements the optional warehouse sink: canonical state
// tables and the audit report are COPYed into Postgres at the end of a
// run.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/covidschooldata/pipeline/internal/table"
	"github.com/covidschooldata/pipeline/pkg/config"
)

// Client wraps the sink connection.
type Client struct {
	DB     *sql.DB
	schema string
}

// New opens the sink connection and verifies it with a ping.
func New(cfg config.PostgresConfig) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	schema := cfg.Schema
	if schema == "" {
		schema = "public"
	}
	return &Client{DB: db, schema: schema}, nil
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.DB.Close()
}

// InTx runs fn inside a transaction, rolling back on error.
func (c *Client) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rolling back transaction after error %v: %w", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// columnName lowercases and sanitizes a table column for Postgres.
func columnName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 || b.String()[0] >= '0' && b.String()[0] <= '9' {
		return "c_" + b.String()
	}
	return b.String()
}

// sanitizeColumns sanitizes every column name, disambiguating collisions
// ("A B" and "A_B" both sanitize to a_b) with a numeric suffix so the
// generated DDL stays valid.
func sanitizeColumns(names []string) []string {
	out := make([]string, len(names))
	used := make(map[string]struct{}, len(names))
	for i, name := range names {
		s := columnName(name)
		base := s
		for n := 2; ; n++ {
			if _, dup := used[s]; !dup {
				break
			}
			s = fmt.Sprintf("%s_%d", base, n)
		}
		used[s] = struct{}{}
		out[i] = s
	}
	return out
}

// SaveTable snapshots a table into schema.name, replacing any prior
// contents. All columns are stored as text; nulls stay null.
func (c *Client) SaveTable(ctx context.Context, name string, t *table.Table) error {
	cols := sanitizeColumns(t.Names())
	defs := make([]string, len(cols))
	for i, col := range cols {
		defs[i] = pq.QuoteIdentifier(col) + " text"
	}
	qualified := pq.QuoteIdentifier(c.schema) + "." + pq.QuoteIdentifier(name)

	return c.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+qualified); err != nil {
			return fmt.Errorf("dropping %s: %w", name, err)
		}
		ddl := fmt.Sprintf("CREATE TABLE %s (%s)", qualified, strings.Join(defs, ", "))
		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("creating %s: %w", name, err)
		}
		stmt, err := tx.PrepareContext(ctx, pq.CopyInSchema(c.schema, name, cols...))
		if err != nil {
			return fmt.Errorf("preparing copy into %s: %w", name, err)
		}
		for row := 0; row < t.NumRows(); row++ {
			args := make([]any, t.NumCols())
			for i, col := range t.Columns() {
				v := col.Values[row]
				if v.IsNull() {
					args[i] = nil
				} else {
					args[i] = v.Format()
				}
			}
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return fmt.Errorf("copying into %s: %w", name, err)
			}
		}
		if _, err := stmt.ExecContext(ctx); err != nil {
			return fmt.Errorf("flushing copy into %s: %w", name, err)
		}
		return stmt.Close()
	})
}
