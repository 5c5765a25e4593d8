// Package dbx carries the explicit target-database handle that every step,
// procedure and catalog operation receives instead of ambient connection state.
package dbx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// ErrTxUnsupported is returned when a transaction is required but the handle
// neither begins transactions nor already wraps one.
var ErrTxUnsupported = errors.New("handle does not support transactions")

// DBTX is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TxBeginner is implemented by *sql.DB and *sql.Conn.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Handle is the data-store context handed to a step by the runner.
// It is owned by the runner; steps never close it.
type Handle struct {
	DB     DBTX
	Driver string
	Format sq.PlaceholderFormat
}

// Builder returns a squirrel statement builder using the handle's placeholder format.
func (h Handle) Builder() sq.StatementBuilderType {
	f := h.Format
	if f == nil {
		f = sq.Question
	}
	return sq.StatementBuilder.PlaceholderFormat(f)
}

// WithDB returns a copy of the handle bound to db.
func (h Handle) WithDB(db DBTX) Handle {
	h.DB = db
	return h
}

// InTransaction reports whether the handle already wraps a transaction.
func (h Handle) InTransaction() bool {
	_, ok := h.DB.(*sql.Tx)
	return ok
}

// InTx runs fn inside a transaction. A handle that already wraps a *sql.Tx is
// reused as is and left for the outer owner to commit.
func InTx(ctx context.Context, h Handle, fn func(Handle) error) error {
	if h.InTransaction() {
		return fn(h)
	}
	b, ok := h.DB.(TxBeginner)
	if !ok {
		return ErrTxUnsupported
	}
	tx, err := b.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(h.WithDB(tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	committed = true
	return nil
}
