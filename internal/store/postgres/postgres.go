package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"bedagang/backend/internal/domain"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

type Store struct {
	db          *sql.DB
	databaseURL string
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := openDB(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, databaseURL: databaseURL}, nil
}

func openDB(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate applies the embedded schema migrations. The migrator owns a
// dedicated connection pool because closing it closes the pool it was given.
func (s *Store) Migrate(ctx context.Context) error {
	db, err := openDB(ctx, s.databaseURL)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}

	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "pgx5", driver)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("migrator: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func uniqueSKUs(items []domain.TransactionLine) []string {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item.SKU == "" {
			continue
		}
		set[item.SKU] = struct{}{}
	}

	skus := make([]string, 0, len(set))
	for sku := range set {
		skus = append(skus, sku)
	}
	sort.Strings(skus)
	return skus
}

func isUniqueViolation(err error) bool {
	_, ok := uniqueViolation(err)
	return ok
}

// uniqueViolation reports the violated constraint name for SQLSTATE 23505.
func uniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return pgErr.ConstraintName, true
	}
	return "", false
}

func affectedOne(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return val.UTC()
}

func nullInt64(val *int64) any {
	if val == nil {
		return nil
	}
	return *val
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	out := v.Int64
	return &out
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	out := v.Time.UTC()
	return &out
}

func limitOr(limit int, fallback int) int {
	if limit < 1 {
		return fallback
	}
	return limit
}
