package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fill-tracker/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// FillRepository handles fill persistence in Postgres. Fills are created by
// the fill-creation consumer; this repository owns their valuation fields.
type FillRepository struct {
	db *PostgresDB
}

// NewFillRepository creates a new fill repository
func NewFillRepository(db *PostgresDB) *FillRepository {
	return &FillRepository{db: db}
}

const fillColumns = `id, transaction_hash, maker, taker, date, assets,
	conversion_usd_amount, has_value, immeasurable, measurement_attempts`

// Insert persists a newly created fill
func (r *FillRepository) Insert(ctx context.Context, fill *models.Fill) error {
	if fill.ID == "" {
		fill.ID = uuid.NewString()
	}

	assetsJSON, err := json.Marshal(fill.Assets)
	if err != nil {
		return fmt.Errorf("failed to marshal fill assets: %w", err)
	}

	_, err = r.db.Pool().Exec(ctx, `
		INSERT INTO fills (`+fillColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		fill.ID,
		strings.ToLower(fill.TransactionHash),
		strings.ToLower(fill.Maker),
		strings.ToLower(fill.Taker),
		fill.Date,
		assetsJSON,
		fill.Conversions.USD.Amount,
		fill.HasValue,
		fill.Immeasurable,
		fill.MeasurementAttempts,
	)
	if err != nil {
		return fmt.Errorf("failed to insert fill: %w", err)
	}

	return nil
}

// GetByID retrieves a fill by identifier. Returns nil when absent.
func (r *FillRepository) GetByID(ctx context.Context, id string) (*models.Fill, error) {
	row := r.db.Pool().QueryRow(ctx,
		`SELECT `+fillColumns+` FROM fills WHERE id = $1`, id)

	fill, err := scanFill(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fill by id: %w", err)
	}

	return fill, nil
}

// GetUnmeasured returns up to limit fills that have no value yet and have
// not been declared immeasurable
func (r *FillRepository) GetUnmeasured(ctx context.Context, limit int) ([]*models.Fill, error) {
	rows, err := r.db.Pool().Query(ctx, `
		SELECT `+fillColumns+`
		FROM fills
		WHERE has_value = FALSE AND immeasurable = FALSE
		ORDER BY date
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get unmeasured fills: %w", err)
	}
	defer rows.Close()

	var fills []*models.Fill
	for rows.Next() {
		fill, err := scanFill(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fill: %w", err)
		}
		fills = append(fills, fill)
	}

	return fills, rows.Err()
}

// UpdateMeasuredWithinTx persists a measured fill's valuation fields as
// part of an enclosing database transaction, so the fill and its index
// updates commit or roll back together.
func (r *FillRepository) UpdateMeasuredWithinTx(ctx context.Context, tx pgx.Tx, fill *models.Fill) error {
	assetsJSON, err := json.Marshal(fill.Assets)
	if err != nil {
		return fmt.Errorf("failed to marshal fill assets: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE fills
		SET assets = $2,
		    conversion_usd_amount = $3,
		    has_value = $4
		WHERE id = $1
	`,
		fill.ID,
		assetsJSON,
		fill.Conversions.USD.Amount,
		fill.HasValue,
	)
	if err != nil {
		return fmt.Errorf("failed to update measured fill %s: %w", fill.ID, err)
	}

	return nil
}

// IncrementMeasurementAttempts bumps the fill's attempt counter and
// returns the new count
func (r *FillRepository) IncrementMeasurementAttempts(ctx context.Context, id string) (int, error) {
	var attempts int
	err := r.db.Pool().QueryRow(ctx, `
		UPDATE fills
		SET measurement_attempts = measurement_attempts + 1
		WHERE id = $1
		RETURNING measurement_attempts
	`, id).Scan(&attempts)
	if err != nil {
		return 0, fmt.Errorf("failed to increment measurement attempts for fill %s: %w", id, err)
	}

	return attempts, nil
}

// MarkImmeasurable flags a fill so it is never retried. A fill that has a
// value is never marked; hasValue and immeasurable are mutually exclusive.
func (r *FillRepository) MarkImmeasurable(ctx context.Context, id string) error {
	_, err := r.db.Pool().Exec(ctx, `
		UPDATE fills
		SET immeasurable = TRUE
		WHERE id = $1 AND has_value = FALSE
	`, id)
	if err != nil {
		return fmt.Errorf("failed to mark fill %s immeasurable: %w", id, err)
	}

	return nil
}

func scanFill(row pgx.Row) (*models.Fill, error) {
	var (
		fill   models.Fill
		assets []byte
	)
	err := row.Scan(
		&fill.ID,
		&fill.TransactionHash,
		&fill.Maker,
		&fill.Taker,
		&fill.Date,
		&assets,
		&fill.Conversions.USD.Amount,
		&fill.HasValue,
		&fill.Immeasurable,
		&fill.MeasurementAttempts,
	)
	if err != nil {
		return nil, err
	}

	if len(assets) > 0 {
		if err := json.Unmarshal(assets, &fill.Assets); err != nil {
			return nil, fmt.Errorf("failed to unmarshal fill assets: %w", err)
		}
	}

	return &fill, nil
}
