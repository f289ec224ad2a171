package consumer

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fill-tracker/internal/decoder"
	apperrors "github.com/fill-tracker/internal/errors"
	"github.com/fill-tracker/internal/logging"
	"github.com/fill-tracker/internal/models"
	"github.com/fill-tracker/internal/queue"
	"github.com/fill-tracker/internal/types"
)

type fakeChain struct {
	blocks   map[uint64]*ethtypes.Block
	receipts map[common.Hash]*ethtypes.Receipt
}

func (c *fakeChain) BlockByNumber(ctx context.Context, number uint64) (*ethtypes.Block, error) {
	return c.blocks[number], nil
}

func (c *fakeChain) TransactionReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	receipt, ok := c.receipts[hash]
	if !ok {
		return nil, fmt.Errorf("no receipt for %s", hash)
	}
	return receipt, nil
}

type fakeStore struct {
	existing  map[string]bool
	metadata  map[string]*models.AddressMetadata
	persisted *models.Transaction
	events    []*models.Event
}

func (s *fakeStore) TransactionExists(ctx context.Context, hash string) (bool, error) {
	return s.existing[hash], nil
}

func (s *fakeStore) PersistTransactionWithEvents(ctx context.Context, txn *models.Transaction, events []*models.Event) error {
	s.persisted = txn
	s.events = events
	return nil
}

func (s *fakeStore) GetAddressMetadata(ctx context.Context, address string) (*models.AddressMetadata, error) {
	return s.metadata[strings.ToLower(address)], nil
}

type publishedJob struct {
	queueName string
	jobName   string
	payload   interface{}
	opts      *queue.PublishOptions
}

type fakePublisher struct {
	published []publishedJob
}

func (p *fakePublisher) Publish(ctx context.Context, queueName, jobName string, payload interface{}, opts *queue.PublishOptions) error {
	p.published = append(p.published, publishedJob{queueName, jobName, payload, opts})
	return nil
}

type fetcherFixture struct {
	fetcher   *TransactionFetcher
	chain     *fakeChain
	store     *fakeStore
	publisher *fakePublisher
	key       *ecdsa.PrivateKey
	sender    common.Address
}

func newFetcherFixture(t *testing.T) *fetcherFixture {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	dec, err := decoder.New()
	require.NoError(t, err)

	chain := &fakeChain{
		blocks:   make(map[uint64]*ethtypes.Block),
		receipts: make(map[common.Hash]*ethtypes.Receipt),
	}
	store := &fakeStore{
		existing: make(map[string]bool),
		metadata: make(map[string]*models.AddressMetadata),
	}
	publisher := &fakePublisher{}

	logger := logging.NewLogger(logging.LevelError, logging.FormatText)

	return &fetcherFixture{
		fetcher:   NewTransactionFetcher(chain, dec, store, publisher, logger),
		chain:     chain,
		store:     store,
		publisher: publisher,
		key:       key,
		sender:    crypto.PubkeyToAddress(key.PublicKey),
	}
}

// minedTransaction signs a transaction and wraps it in a block at the
// given height, registering an empty receipt for it.
func (f *fetcherFixture) minedTransaction(t *testing.T, blockNumber uint64) *ethtypes.Transaction {
	t.Helper()

	to := common.HexToAddress("0xdef1c0ded9bec7f1a1670819833240f027b25eff")
	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    7,
		To:       &to,
		Value:    big.NewInt(0),
		Gas:      210000,
		GasPrice: big.NewInt(45000000000),
		Data:     []byte{0xd9, 0x62, 0x7a, 0xa4},
	})
	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(big.NewInt(1)), f.key)
	require.NoError(t, err)

	header := &ethtypes.Header{
		Number: new(big.Int).SetUint64(blockNumber),
		Time:   uint64(time.Date(2021, 1, 6, 10, 0, 0, 0, time.UTC).Unix()),
	}
	block := ethtypes.NewBlockWithHeader(header).WithBody(ethtypes.Body{
		Transactions: []*ethtypes.Transaction{signed},
	})

	f.chain.blocks[blockNumber] = block
	f.chain.receipts[signed.Hash()] = &ethtypes.Receipt{
		TxHash:  signed.Hash(),
		GasUsed: 182000,
	}

	return signed
}

func fetchJob(t *testing.T, hash *string, blockNumber uint64) *queue.Job {
	t.Helper()

	payload := FetchTransactionPayload{TransactionHash: hash, BlockNumber: blockNumber}
	job := &queue.Job{Name: queue.JobFetchTransaction}

	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	job.Payload = raw

	return job
}

func TestFetcherRejectsMissingHash(t *testing.T) {
	f := newFetcherFixture(t)

	err := f.fetcher.Handle(context.Background(), fetchJob(t, nil, 11598068))
	require.Error(t, err)
	assert.Equal(t, "Invalid transactionHash: null", err.Error())

	var cerr *apperrors.CategorizedError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, apperrors.CategoryUserInput, cerr.Category)
	assert.False(t, apperrors.IsRetryable(err))
}

func TestFetcherRejectsEmptyHash(t *testing.T) {
	f := newFetcherFixture(t)

	empty := ""
	err := f.fetcher.Handle(context.Background(), fetchJob(t, &empty, 11598068))
	require.Error(t, err)
	assert.Equal(t, "Invalid transactionHash: ", err.Error())
}

func TestFetcherSkipsExistingTransaction(t *testing.T) {
	f := newFetcherFixture(t)
	hash := "0x846d405f1ab318362bdeccc7e3ead7e08f4e3103ba2255a83316a57a5b85a0a2"
	f.store.existing[hash] = true

	err := f.fetcher.Handle(context.Background(), fetchJob(t, &hash, 11598068))
	require.NoError(t, err)
	assert.Nil(t, f.store.persisted)
	assert.Empty(t, f.publisher.published)
}

func TestFetcherBlockNotFound(t *testing.T) {
	f := newFetcherFixture(t)
	hash := "0x846d405f1ab318362bdeccc7e3ead7e08f4e3103ba2255a83316a57a5b85a0a2"

	err := f.fetcher.Handle(context.Background(), fetchJob(t, &hash, 11598068))
	require.Error(t, err)
	assert.Equal(t, "Block not found: 11598068", err.Error())
	assert.True(t, apperrors.IsRetryable(err))
}

func TestFetcherTransactionNotFound(t *testing.T) {
	f := newFetcherFixture(t)
	f.minedTransaction(t, 11598068)

	hash := "0x00000000000000000000000000000000000000000000000000000000000000ff"
	err := f.fetcher.Handle(context.Background(), fetchJob(t, &hash, 11598068))
	require.Error(t, err)
	assert.Equal(t, "Transaction not found: "+hash, err.Error())
}

func TestFetcherPersistsAndSchedulesClassification(t *testing.T) {
	f := newFetcherFixture(t)
	signed := f.minedTransaction(t, 11598068)

	hash := signed.Hash().Hex()
	err := f.fetcher.Handle(context.Background(), fetchJob(t, &hash, 11598068))
	require.NoError(t, err)

	require.NotNil(t, f.store.persisted)
	txn := f.store.persisted
	assert.Equal(t, hash, txn.Hash)
	assert.Equal(t, uint64(11598068), txn.BlockNumber)
	assert.Equal(t, f.sender.Hex(), txn.From)
	assert.Equal(t, "0xdEF1C0ded9bec7F1a1670819833240f027b25EfF", txn.To)
	assert.Equal(t, uint64(182000), txn.GasUsed)
	assert.Equal(t, uint64(210000), txn.GasLimit)
	assert.Equal(t, "45000000000", txn.GasPrice)
	assert.Equal(t, uint(0), txn.Index)
	assert.Equal(t, time.Date(2021, 1, 6, 10, 0, 0, 0, time.UTC), txn.Date)
	assert.Equal(t, txn.Date, txn.QuoteDate)

	require.Len(t, f.publisher.published, 1)
	published := f.publisher.published[0]
	assert.Equal(t, queue.QueueAddressProcessing, published.queueName)
	assert.Equal(t, queue.JobFetchAddressType, published.jobName)
	assert.Equal(t, "fetch-address-type-"+strings.ToLower(f.sender.Hex()), published.opts.JobID)
}

func TestFetcherDecodesBridgeFillLogs(t *testing.T) {
	f := newFetcherFixture(t)
	signed := f.minedTransaction(t, 11598068)

	// BridgeFill(uint256 source, address inputToken, address outputToken,
	// uint256 inputTokenAmount, uint256 outputTokenAmount), word-packed.
	data := make([]byte, 0, 5*32)
	data = append(data, common.LeftPadBytes(big.NewInt(6).Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(common.HexToAddress("0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2").Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(common.HexToAddress("0x6b175474e89094c44da98b954eedeac495271d0f").Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(big.NewInt(1000000).Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(big.NewInt(2000000).Bytes(), 32)...)

	f.chain.receipts[signed.Hash()].Logs = []*ethtypes.Log{{
		Topics:      []common.Hash{common.HexToHash("0xff3bc5e46464411f331d1b093e1587d2d1aa667f5618f98a95afc4132709d3a9")},
		Data:        data,
		TxHash:      signed.Hash(),
		BlockNumber: 11598068,
		Index:       2,
	}}

	hash := signed.Hash().Hex()
	require.NoError(t, f.fetcher.Handle(context.Background(), fetchJob(t, &hash, 11598068)))

	require.Len(t, f.store.events, 1)
	event := f.store.events[0]
	assert.Equal(t, types.EventBridgeFill, event.Type)
	assert.Equal(t, types.ProtocolV4, event.ProtocolVersion)
	assert.Equal(t, uint(2), event.LogIndex)
}

func TestFetcherSkipsClassificationWhenResolved(t *testing.T) {
	f := newFetcherFixture(t)
	signed := f.minedTransaction(t, 11598068)

	isContract := false
	f.store.metadata[strings.ToLower(f.sender.Hex())] = &models.AddressMetadata{
		Address:    f.sender.Hex(),
		IsContract: &isContract,
	}

	hash := signed.Hash().Hex()
	require.NoError(t, f.fetcher.Handle(context.Background(), fetchJob(t, &hash, 11598068)))
	assert.Empty(t, f.publisher.published)
}
