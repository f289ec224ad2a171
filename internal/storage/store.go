package storage

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/fill-tracker/internal/models"
)

// Store bundles the Postgres repositories and exposes the pipeline's two
// multi-table atomic units. Everything inside each unit commits or rolls
// back together; no partial state is observable by concurrent readers.
type Store struct {
	db *PostgresDB

	Transactions    *TransactionRepository
	Events          *EventRepository
	Fills           *FillRepository
	AddressMetadata *AddressMetadataRepository

	fillValues   *FillValueIndexRepository
	fillTraders  *FillTraderIndexRepository
	tradedTokens *TradedTokenIndexRepository
}

func NewStore(db *PostgresDB) *Store {
	return &Store{
		db:              db,
		Transactions:    NewTransactionRepository(db),
		Events:          NewEventRepository(db),
		Fills:           NewFillRepository(db),
		AddressMetadata: NewAddressMetadataRepository(db),
		fillValues:      NewFillValueIndexRepository(),
		fillTraders:     NewFillTraderIndexRepository(),
		tradedTokens:    NewTradedTokenIndexRepository(),
	}
}

// TransactionExists reports whether a transaction with the hash has been
// persisted already.
func (s *Store) TransactionExists(ctx context.Context, hash string) (bool, error) {
	return s.Transactions.Exists(ctx, hash)
}

// GetAddressMetadata returns the stored classification for address, or nil
// when the address has never been seen.
func (s *Store) GetAddressMetadata(ctx context.Context, address string) (*models.AddressMetadata, error) {
	return s.AddressMetadata.Get(ctx, address)
}

// GetUnmeasuredFills returns fills awaiting valuation, oldest first.
func (s *Store) GetUnmeasuredFills(ctx context.Context, limit int) ([]*models.Fill, error) {
	return s.Fills.GetUnmeasured(ctx, limit)
}

// IncrementFillMeasurementAttempts bumps a fill's failed-measurement
// counter and returns the new count.
func (s *Store) IncrementFillMeasurementAttempts(ctx context.Context, id string) (int, error) {
	return s.Fills.IncrementMeasurementAttempts(ctx, id)
}

// MarkFillImmeasurable flags a fill so it is never picked up for
// measurement again.
func (s *Store) MarkFillImmeasurable(ctx context.Context, id string) error {
	return s.Fills.MarkImmeasurable(ctx, id)
}

// PersistTransactionWithEvents writes a fetched transaction and all of its
// decoded events in a single database transaction.
func (s *Store) PersistTransactionWithEvents(ctx context.Context, txn *models.Transaction, events []*models.Event) error {
	return s.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if err := s.Transactions.InsertWithinTx(ctx, tx, txn); err != nil {
			return err
		}
		for _, event := range events {
			if err := s.Events.InsertWithinTx(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
}

// CommitMeasuredFill persists a measured fill together with its three
// downstream index updates in a single database transaction.
func (s *Store) CommitMeasuredFill(ctx context.Context, fill *models.Fill, totalValue float64) error {
	return s.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if err := s.Fills.UpdateMeasuredWithinTx(ctx, tx, fill); err != nil {
			return err
		}
		if err := s.fillValues.IndexWithinTx(ctx, tx, fill, totalValue); err != nil {
			return err
		}
		if err := s.fillTraders.IndexWithinTx(ctx, tx, fill); err != nil {
			return err
		}
		return s.tradedTokens.IndexWithinTx(ctx, tx, fill)
	})
}
