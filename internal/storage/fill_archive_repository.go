package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/fill-tracker/internal/models"
)

// FillArchiveRepository appends priced fills to the ClickHouse analytics
// archive. The archive is write-behind and non-authoritative: it sits
// outside the measurer's commit transaction, and a failed append is logged
// by the caller rather than failing the job.
type FillArchiveRepository struct {
	db *ClickHouseDB
}

// NewFillArchiveRepository creates a new fill archive repository
func NewFillArchiveRepository(db *ClickHouseDB) *FillArchiveRepository {
	return &FillArchiveRepository{db: db}
}

// Append writes a measured fill to the archive
func (r *FillArchiveRepository) Append(ctx context.Context, fill *models.Fill) error {
	if fill.Conversions.USD.Amount == nil {
		return fmt.Errorf("refusing to archive unmeasured fill %s", fill.ID)
	}

	return r.AppendBatch(ctx, []*models.Fill{fill})
}

// AppendBatch writes measured fills to the archive in a single batch
func (r *FillArchiveRepository) AppendBatch(ctx context.Context, fills []*models.Fill) error {
	if len(fills) == 0 {
		return nil
	}

	batch, err := r.db.Conn().PrepareBatch(ctx, `
		INSERT INTO fill_archive (fill_id, transaction_hash, maker, taker, value_usd, date)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare archive batch: %w", err)
	}

	for _, fill := range fills {
		var valueUSD float64
		if fill.Conversions.USD.Amount != nil {
			valueUSD = *fill.Conversions.USD.Amount
		}
		err = batch.Append(
			fill.ID,
			strings.ToLower(fill.TransactionHash),
			strings.ToLower(fill.Maker),
			strings.ToLower(fill.Taker),
			valueUSD,
			fill.Date,
		)
		if err != nil {
			return fmt.Errorf("failed to append fill %s to archive batch: %w", fill.ID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send archive batch: %w", err)
	}

	return nil
}
