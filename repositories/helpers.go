package repositories

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// SQLExecutor is satisfied by both *sqlx.DB and *sqlx.Tx, so every repository method can run
// inside a caller's transaction or on its own.
type SQLExecutor interface {
	sqlx.ExtContext
}

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

func checkAffectedRows(result sql.Result, notFoundError error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if rowsAffected == 0 {
		return notFoundError
	}
	return nil
}

// mapConstraintError translates postgres constraint violations into repository errors.
func mapConstraintError(err error, onUnique, onForeignKey error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case pqUniqueViolation:
		if onUnique != nil {
			return fmt.Errorf("%w: %s", onUnique, pqErr.Constraint)
		}
	case pqForeignKeyViolation:
		if onForeignKey != nil {
			return fmt.Errorf("%w: %s", onForeignKey, pqErr.Constraint)
		}
	}
	return err
}
