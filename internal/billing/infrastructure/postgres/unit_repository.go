package postgres

import (
	"context"
	"database/sql"
	"errors"

	"water-billing/internal/billing/application"
)

// UnitRepository reads the unit registry.
type UnitRepository struct{}

// NewUnitRepository constructs a repository.
func NewUnitRepository() *UnitRepository {
	return &UnitRepository{}
}

// LookupUnitName returns the display name of a unit. ok is false when the
// unit is not registered.
func (r *UnitRepository) LookupUnitName(ctx context.Context, q application.DBTX, unitID int64) (string, bool, error) {
	if q == nil {
		return "", false, errors.New("unit repo: nil db")
	}
	var name string
	err := q.QueryRowContext(ctx, `SELECT name FROM units WHERE id = $1`, unitID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return name, true, nil
}
