package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Togather-Foundation/eventos/internal/domain/events"
)

var _ events.AccountDirectory = (*AccountRepository)(nil)

// AccountRepository reads the accounts table. Accounts are provisioned by the account
// store; this service never writes them.
type AccountRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func (r *AccountRepository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := pick(r.pool, r.tx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check account: %w", err)
	}
	return exists, nil
}

// Lookup resolves the caller identity for id.
func (r *AccountRepository) Lookup(ctx context.Context, id string) (events.Caller, error) {
	caller := events.Caller{ID: id}
	err := pick(r.pool, r.tx).QueryRow(ctx, `SELECT name FROM accounts WHERE id = $1`, id).Scan(&caller.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return events.Caller{}, &events.NotFoundError{Resource: "account", ID: id}
	}
	if err != nil {
		return events.Caller{}, fmt.Errorf("lookup account: %w", err)
	}
	return caller, nil
}
