// Package consumer holds the queue job handlers that drive the ingestion
// pipeline: fetching mined transactions from the chain and classifying the
// addresses they came from.
package consumer

import (
	"context"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/fill-tracker/internal/decoder"
	apperrors "github.com/fill-tracker/internal/errors"
	"github.com/fill-tracker/internal/logging"
	"github.com/fill-tracker/internal/models"
	"github.com/fill-tracker/internal/queue"
)

// ChainReader is the chain access the fetcher needs.
type ChainReader interface {
	BlockByNumber(ctx context.Context, number uint64) (*ethtypes.Block, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error)
}

// TransactionStore is the persistence surface of the fetcher.
type TransactionStore interface {
	TransactionExists(ctx context.Context, hash string) (bool, error)
	PersistTransactionWithEvents(ctx context.Context, txn *models.Transaction, events []*models.Event) error
	GetAddressMetadata(ctx context.Context, address string) (*models.AddressMetadata, error)
}

// Publisher enqueues follow-up jobs.
type Publisher interface {
	Publish(ctx context.Context, queueName, jobName string, payload interface{}, opts *queue.PublishOptions) error
}

// FetchTransactionPayload is the fetch-transaction job body. The hash is a
// pointer so an absent field is distinguishable from an empty one.
type FetchTransactionPayload struct {
	TransactionHash *string `json:"transactionHash"`
	BlockNumber     uint64  `json:"blockNumber"`
}

// FetchAddressTypePayload is the fetch-address-type job body.
type FetchAddressTypePayload struct {
	Address string `json:"address"`
}

// TransactionFetcher consumes fetch-transaction jobs: it pulls the mined
// transaction and its receipt from the chain, decodes the receipt's logs
// into domain events, and persists transaction plus events atomically.
type TransactionFetcher struct {
	chain   ChainReader
	decoder *decoder.Decoder
	store   TransactionStore
	queue   Publisher
	logger  *logging.Logger
}

func NewTransactionFetcher(chain ChainReader, dec *decoder.Decoder, store TransactionStore, q Publisher, logger *logging.Logger) *TransactionFetcher {
	return &TransactionFetcher{
		chain:   chain,
		decoder: dec,
		store:   store,
		queue:   q,
		logger:  logger,
	}
}

// Handle processes one fetch-transaction job. Re-fetches for an already
// persisted hash return immediately with no side effects.
func (f *TransactionFetcher) Handle(ctx context.Context, job *queue.Job) error {
	var payload FetchTransactionPayload
	if err := job.UnmarshalPayload(&payload); err != nil {
		return apperrors.NewDecodeError(queue.JobFetchTransaction, err)
	}

	if payload.TransactionHash == nil {
		return apperrors.NewInvalidTransactionHashError("null")
	}
	hash := *payload.TransactionHash
	if hash == "" {
		return apperrors.NewInvalidTransactionHashError(hash)
	}

	exists, err := f.store.TransactionExists(ctx, hash)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	block, err := f.chain.BlockByNumber(ctx, payload.BlockNumber)
	if err != nil {
		return err
	}
	if block == nil {
		return apperrors.NewBlockNotFoundError(payload.BlockNumber)
	}

	chainTx, index := findTransaction(block, hash)
	if chainTx == nil {
		return apperrors.NewTransactionNotFoundError(hash)
	}

	receipt, err := f.chain.TransactionReceipt(ctx, chainTx.Hash())
	if err != nil {
		return err
	}

	events, err := f.decoder.DecodeReceipt(receipt)
	if err != nil {
		return err
	}

	txn, err := buildTransaction(block, chainTx, receipt, index)
	if err != nil {
		return err
	}

	if err := f.store.PersistTransactionWithEvents(ctx, txn, events); err != nil {
		return err
	}

	f.logger.WithFields(map[string]interface{}{
		"transactionHash": txn.Hash,
		"blockNumber":     txn.BlockNumber,
		"events":          len(events),
	}).Info("persisted transaction")

	return f.scheduleAddressClassification(ctx, txn.From)
}

// scheduleAddressClassification enqueues a fetch-address-type job for the
// sender unless its contract classification is already known. The dedup
// job id collapses concurrent enqueues of the same address.
func (f *TransactionFetcher) scheduleAddressClassification(ctx context.Context, address string) error {
	meta, err := f.store.GetAddressMetadata(ctx, address)
	if err != nil {
		return err
	}
	if meta != nil && meta.IsResolved() {
		return nil
	}

	return f.queue.Publish(ctx, queue.QueueAddressProcessing, queue.JobFetchAddressType,
		&FetchAddressTypePayload{Address: address},
		&queue.PublishOptions{JobID: queue.JobFetchAddressType + "-" + strings.ToLower(address)})
}

func findTransaction(block *ethtypes.Block, hash string) (*ethtypes.Transaction, uint) {
	target := common.HexToHash(hash)
	for i, tx := range block.Transactions() {
		if tx.Hash() == target {
			return tx, uint(i)
		}
	}
	return nil, 0
}

func buildTransaction(block *ethtypes.Block, chainTx *ethtypes.Transaction, receipt *ethtypes.Receipt, index uint) (*models.Transaction, error) {
	from, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(chainTx.ChainId()), chainTx)
	if err != nil {
		return nil, apperrors.NewDecodeError(chainTx.Hash().Hex(), err)
	}

	to := ""
	if chainTx.To() != nil {
		to = chainTx.To().Hex()
	}

	minedAt := time.Unix(int64(block.Time()), 0).UTC()

	return &models.Transaction{
		Hash:        chainTx.Hash().Hex(),
		BlockHash:   block.Hash().Hex(),
		BlockNumber: block.NumberU64(),
		From:        from.Hex(),
		To:          to,
		Data:        hexutil.Encode(chainTx.Data()),
		GasLimit:    chainTx.Gas(),
		GasPrice:    chainTx.GasPrice().String(),
		GasUsed:     receipt.GasUsed,
		Nonce:       chainTx.Nonce(),
		Index:       index,
		Value:       chainTx.Value().String(),
		Date:        minedAt,
		QuoteDate:   minedAt,
	}, nil
}
