package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"habitat/internal/platform/postgres"
	txcontext "habitat/pkg/platform/tx"
)

// inspectionPostgresTx runs each unit of work in one transaction holding an
// advisory lock on the key, so work on one inspection (or one lease and type)
// is serialized across processes.
type inspectionPostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func newInspectionPostgresTx(db *sql.DB, timeout time.Duration) *inspectionPostgresTx {
	return &inspectionPostgresTx{db: db, timeout: timeout}
}

func (t *inspectionPostgresTx) RunInTx(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	return postgres.RunInTx(ctx, t.db, t.timeout, func(ctx context.Context) error {
		tx, _ := txcontext.From(ctx)
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
			return fmt.Errorf("acquire advisory lock: %w", err)
		}
		return fn(ctx)
	})
}

// runInTx adapts postgres.RunInTx to the outbox relay.
func (t *inspectionPostgresTx) runInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return postgres.RunInTx(ctx, t.db, t.timeout, fn)
}
