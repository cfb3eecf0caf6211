package adapter

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
)

// BaseSQLAdapter provides common database/sql functionality for SQL-backed
// engines. Embed it in concrete engines to get Close, Exec and QueryRow.
type BaseSQLAdapter struct {
	DB     *sql.DB
	Cfg    Config
	Logger *slog.Logger
}

// Close closes the database connection.
func (b *BaseSQLAdapter) Close() error {
	if b.DB != nil {
		if b.Logger != nil {
			b.Logger.Debug("closing database connection")
		}
		return b.DB.Close()
	}
	return nil
}

// Exec executes statements that don't return rows.
func (b *BaseSQLAdapter) Exec(ctx context.Context, stmt string, args ...any) error {
	if b.DB == nil {
		return fmt.Errorf("database connection not established")
	}
	if b.Logger != nil {
		b.Logger.Debug("exec", slog.String("sql", stmt))
	}
	if _, err := b.DB.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("failed to execute SQL: %w", err)
	}
	return nil
}

// QueryRow runs a query expected to return one row and scans it into dest.
func (b *BaseSQLAdapter) QueryRow(ctx context.Context, query string, args []any, dest ...any) error {
	if b.DB == nil {
		return fmt.Errorf("database connection not established")
	}
	if err := b.DB.QueryRowContext(ctx, query, args...).Scan(dest...); err != nil {
		return fmt.Errorf("failed to execute query: %w", err)
	}
	return nil
}

// IsConnected returns true if the database connection is established.
func (b *BaseSQLAdapter) IsConnected() bool {
	return b.DB != nil
}

// QuoteIdent quotes a SQL identifier, doubling embedded quotes.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QualifiedName joins a schema and a table name, quoting both.
// An empty schema yields the bare quoted table.
func QualifiedName(schema, table string) string {
	if schema == "" {
		return QuoteIdent(table)
	}
	return QuoteIdent(schema) + "." + QuoteIdent(table)
}
