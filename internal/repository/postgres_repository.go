package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the part of *pgxpool.Pool the Postgres repositories use.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// querier is satisfied by both DB and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository implements Repository over a pgx pool.
type PostgresRepository struct {
	db DB
}

// NewPostgresRepository instantiates repository.
func NewPostgresRepository(db DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// inTx runs fn in a transaction, committing on success and rolling back otherwise.
func (r *PostgresRepository) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// corrupt marks a value read back from storage that the domain rejects.
func corrupt(err error) error {
	return fmt.Errorf("%w: %w", ErrCorruptRecord, err)
}

// classifyPgError maps driver errors onto repository sentinels. Connection-level and
// serialization failures stay unwrapped so the retry decorator treats them as transient.
func classifyPgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch {
	case len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08",
		pgErr.Code == "40001", pgErr.Code == "40P01",
		pgErr.Code == "53300", pgErr.Code == "57P01", pgErr.Code == "57P02", pgErr.Code == "57P03":
		return err
	case len(pgErr.Code) >= 2 && pgErr.Code[:2] == "23":
		return fmt.Errorf("%w: %s", ErrInvalidValue, pgErr.Message)
	}
	return fmt.Errorf("%w: %v", ErrStorage, err)
}
