package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/fill-tracker/internal/models"
	"github.com/jackc/pgx/v5"
)

// AddressMetadataRepository handles the address classification cache
type AddressMetadataRepository struct {
	db *PostgresDB
}

// NewAddressMetadataRepository creates a new address metadata repository
func NewAddressMetadataRepository(db *PostgresDB) *AddressMetadataRepository {
	return &AddressMetadataRepository{db: db}
}

// Get retrieves metadata for an address. Returns nil when no record exists.
func (r *AddressMetadataRepository) Get(ctx context.Context, address string) (*models.AddressMetadata, error) {
	var meta models.AddressMetadata
	err := r.db.Pool().QueryRow(ctx,
		`SELECT address, is_contract FROM address_metadata WHERE address = $1`,
		strings.ToLower(address),
	).Scan(&meta.Address, &meta.IsContract)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get address metadata: %w", err)
	}

	return &meta, nil
}

// Upsert creates or updates the classification for an address
func (r *AddressMetadataRepository) Upsert(ctx context.Context, address string, isContract bool) error {
	_, err := r.db.Pool().Exec(ctx, `
		INSERT INTO address_metadata (address, is_contract)
		VALUES ($1, $2)
		ON CONFLICT (address) DO UPDATE SET is_contract = EXCLUDED.is_contract
	`, strings.ToLower(address), isContract)
	if err != nil {
		return fmt.Errorf("failed to upsert address metadata: %w", err)
	}

	return nil
}
