// ABOUTME: PostgreSQL flavour of the SQL store using pgx's database/sql driver
// ABOUTME: Schema is managed by goose migrations embedded in the binary

package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

var postgresDialect = dialect{
	name:              "postgres",
	rebind:            rebindDollar,
	isUniqueViolation: isPostgresUniqueViolation,
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// NewPostgresStore connects to PostgreSQL with the given DSN and applies
// pending migrations before returning.
func NewPostgresStore(ctx context.Context, dsn string) (*SQLStore, error) {
	logger := slog.Default().With("component", "store", "driver", "postgres")

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if err := runPostgresMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("PostgreSQL store initialized")
	return &SQLStore{
		db:      db,
		dialect: postgresDialect,
		logger:  logger,
	}, nil
}

// runPostgresMigrations sets up goose with the embedded migrations and runs
// them against the provided database connection.
func runPostgresMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}
	return gooseUpContext(ctx, db, "migrations")
}

// rebindDollar rewrites '?' placeholders into PostgreSQL's $1, $2, ... form.
// Queries in this package never contain a literal '?'.
func rebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isPostgresUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
