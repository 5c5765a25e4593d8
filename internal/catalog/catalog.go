// Package catalog reads and renames rows of the metric reference table.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/loykin/stepmigrate/internal/common"
	"github.com/loykin/stepmigrate/internal/constants"
	"github.com/loykin/stepmigrate/internal/dbx"
	"github.com/loykin/stepmigrate/internal/store/connector"
)

var (
	// ErrPersistence classifies failed catalog writes.
	ErrPersistence = errors.New("catalog persistence failure")
	// ErrDuplicateName means the name lookup matched more than one row.
	ErrDuplicateName = errors.New("catalog name is not unique")
)

// Metric is a row of the metrics table. Only the columns the migration
// touches or reports are mapped.
type Metric struct {
	ID          int64
	Name        string
	Description sql.NullString
	Domain      sql.NullString
}

// PersistenceError wraps a write that could not be committed.
type PersistenceError struct {
	Table string
	ID    int64
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s row %d: %v", e.Table, e.ID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// Accessor scopes catalog operations to one table. It holds no connection;
// every call takes the handle it runs against.
type Accessor struct {
	table string
}

// New returns an accessor for table, or the default metrics table when empty.
func New(table string) (*Accessor, error) {
	if table == "" {
		table = constants.DefaultMetricsTable
	}
	if err := connector.ValidateTableName(table); err != nil {
		return nil, err
	}
	return &Accessor{table: table}, nil
}

// Table returns the table the accessor operates on.
func (a *Accessor) Table() string { return a.table }

// FindByName returns the unique row with the given name. Absence is reported
// with ok=false and a nil error.
func (a *Accessor) FindByName(ctx context.Context, h dbx.Handle, name string) (*Metric, bool, error) {
	// two rows are enough to detect a uniqueness violation
	q, args, err := h.Builder().
		Select("id", "name", "description", "domain").
		From(a.table).
		Where(sq.Eq{"name": name}).
		OrderBy("id ASC").
		Limit(2).
		ToSql()
	if err != nil {
		return nil, false, err
	}

	rows, err := h.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, false, fmt.Errorf("find %s by name %q: %w", a.table, name, err)
	}
	defer func() { _ = rows.Close() }()

	var found []Metric
	for rows.Next() {
		var m Metric
		if err := rows.Scan(&m.ID, &m.Name, &m.Description, &m.Domain); err != nil {
			return nil, false, fmt.Errorf("scan %s row: %w", a.table, err)
		}
		found = append(found, m)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate %s rows: %w", a.table, err)
	}

	switch len(found) {
	case 0:
		return nil, false, nil
	case 1:
		return &found[0], true, nil
	default:
		return nil, false, fmt.Errorf("%w: %d or more %s rows named %q (ids %d, %d)",
			ErrDuplicateName, len(found), a.table, name, found[0].ID, found[1].ID)
	}
}

// Rename persists newName for the row with the given id. Exactly one row must
// change; anything else is a PersistenceError.
func (a *Accessor) Rename(ctx context.Context, h dbx.Handle, id int64, newName string) error {
	q, args, err := h.Builder().
		Update(a.table).
		Set("name", newName).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return err
	}

	res, err := h.DB.ExecContext(ctx, q, args...)
	if err != nil {
		return &PersistenceError{Table: a.table, ID: id, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &PersistenceError{Table: a.table, ID: id, Err: err}
	}
	if n != 1 {
		return &PersistenceError{Table: a.table, ID: id, Err: fmt.Errorf("expected 1 row updated, got %d", n)}
	}

	common.GetLogger().WithComponent("catalog").Debug("catalog row renamed", "table", a.table, "id", id, "name", newName)
	return nil
}
