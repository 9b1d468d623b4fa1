package adapter

import (
	"context"
	"fmt"
)

// BeginTransaction opens the single supported transaction level.
// Batches that only need atomicity should use ExecuteMany instead of
// managing a transaction by hand.
func (a *Adapter) BeginTransaction(ctx context.Context) error {
	if !a.IsOpen() {
		return ErrNotInitialized
	}
	if a.tx != nil {
		return ErrTransactionActive
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	a.tx = tx
	return nil
}

func (a *Adapter) CommitTransaction(ctx context.Context) error {
	if !a.IsOpen() {
		return ErrNotInitialized
	}
	if a.tx == nil {
		return ErrNoTransaction
	}

	err := a.tx.Commit()
	a.tx = nil
	if err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return a.seal(ctx)
}

func (a *Adapter) RollbackTransaction(ctx context.Context) error {
	if !a.IsOpen() {
		return ErrNotInitialized
	}
	if a.tx == nil {
		return ErrNoTransaction
	}

	err := a.tx.Rollback()
	a.tx = nil
	if err != nil {
		return fmt.Errorf("rollback transaction: %w", err)
	}
	return nil
}

// InTransaction reports whether the single transaction level is active.
func (a *Adapter) InTransaction() bool {
	return a.tx != nil
}
