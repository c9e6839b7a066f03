// Package catalog reads the property listings owned by the marketplace's
// listing subsystem. This service only ever sees units in OFFERED status.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rumahkita/pemilu/internal/election"
	"github.com/rumahkita/pemilu/internal/models"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetOfferedUnit returns the unit only if it is currently offered.
func (r *Repository) GetOfferedUnit(ctx context.Context, unitID uuid.UUID) (*models.Unit, error) {
	var u models.Unit
	err := r.pool.QueryRow(ctx, `
		SELECT id, title, address, price, status
		FROM units
		WHERE id = $1 AND status = 'OFFERED'
	`, unitID).Scan(&u.ID, &u.Title, &u.Address, &u.Price, &u.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, election.ErrUnitNotAvailable
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get offered unit: %w", err)
	}
	return &u, nil
}

// ListOffered returns all units available for selection.
func (r *Repository) ListOffered(ctx context.Context) ([]models.Unit, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, title, address, price, status
		FROM units
		WHERE status = 'OFFERED'
		ORDER BY title
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list offered units: %w", err)
	}
	defer rows.Close()

	var units []models.Unit
	for rows.Next() {
		var u models.Unit
		if err := rows.Scan(&u.ID, &u.Title, &u.Address, &u.Price, &u.Status); err != nil {
			return nil, fmt.Errorf("failed to scan unit: %w", err)
		}
		units = append(units, u)
	}
	return units, rows.Err()
}
