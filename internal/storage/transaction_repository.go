package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/fill-tracker/internal/models"
	"github.com/jackc/pgx/v5"
)

// TransactionRepository handles transaction persistence in Postgres.
// Transactions are immutable once written; the hash is globally unique and
// the table-level constraint is the final backstop against duplicate
// fetches racing past the existence check.
type TransactionRepository struct {
	db *PostgresDB
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *PostgresDB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

const transactionColumns = `hash, block_hash, block_number, sender, recipient, data,
	gas_limit, gas_price, gas_used, nonce, tx_index, value, date, quote_date`

// Exists reports whether a transaction with the given hash has been persisted
func (r *TransactionRepository) Exists(ctx context.Context, hash string) (bool, error) {
	var exists bool
	err := r.db.Pool().QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM transactions WHERE hash = $1)`,
		strings.ToLower(hash),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check transaction existence: %w", err)
	}
	return exists, nil
}

// GetByHash retrieves a transaction by hash. Returns nil when no
// transaction with the hash has been persisted.
func (r *TransactionRepository) GetByHash(ctx context.Context, hash string) (*models.Transaction, error) {
	row := r.db.Pool().QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE hash = $1`,
		strings.ToLower(hash),
	)

	txn, err := scanTransaction(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction by hash: %w", err)
	}

	return txn, nil
}

// GetByHashes retrieves the subset of the given hashes that have been
// persisted, keyed by hash. Hashes with no persisted transaction are simply
// absent from the result.
func (r *TransactionRepository) GetByHashes(ctx context.Context, hashes []string) (map[string]*models.Transaction, error) {
	if len(hashes) == 0 {
		return map[string]*models.Transaction{}, nil
	}

	normalized := make([]string, len(hashes))
	for i, hash := range hashes {
		normalized[i] = strings.ToLower(hash)
	}

	rows, err := r.db.Pool().Query(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE hash = ANY($1)`,
		normalized,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions by hashes: %w", err)
	}
	defer rows.Close()

	result := make(map[string]*models.Transaction)
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		result[txn.Hash] = txn
	}

	return result, rows.Err()
}

// InsertWithinTx inserts a transaction as part of an enclosing database
// transaction. Used by the fetch-transaction consumer so the transaction
// and its decoded events commit or roll back together.
func (r *TransactionRepository) InsertWithinTx(ctx context.Context, tx pgx.Tx, txn *models.Transaction) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		strings.ToLower(txn.Hash),
		strings.ToLower(txn.BlockHash),
		txn.BlockNumber,
		strings.ToLower(txn.From),
		strings.ToLower(txn.To),
		txn.Data,
		txn.GasLimit,
		txn.GasPrice,
		txn.GasUsed,
		txn.Nonce,
		txn.Index,
		txn.Value,
		txn.Date,
		txn.QuoteDate,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction %s: %w", txn.Hash, err)
	}

	return nil
}

func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	var txn models.Transaction
	err := row.Scan(
		&txn.Hash,
		&txn.BlockHash,
		&txn.BlockNumber,
		&txn.From,
		&txn.To,
		&txn.Data,
		&txn.GasLimit,
		&txn.GasPrice,
		&txn.GasUsed,
		&txn.Nonce,
		&txn.Index,
		&txn.Value,
		&txn.Date,
		&txn.QuoteDate,
	)
	if err != nil {
		return nil, err
	}
	return &txn, nil
}
