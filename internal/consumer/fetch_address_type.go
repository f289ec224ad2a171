package consumer

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	apperrors "github.com/fill-tracker/internal/errors"
	"github.com/fill-tracker/internal/logging"
	"github.com/fill-tracker/internal/queue"
)

// CodeReader reads deployed bytecode at an address.
type CodeReader interface {
	CodeAt(ctx context.Context, address common.Address) ([]byte, error)
}

// AddressMetadataWriter persists address classifications.
type AddressMetadataWriter interface {
	Upsert(ctx context.Context, address string, isContract bool) error
}

// AddressTypeFetcher consumes fetch-address-type jobs and classifies an
// address as a contract or an externally owned account by whether it has
// code deployed.
type AddressTypeFetcher struct {
	chain  CodeReader
	store  AddressMetadataWriter
	logger *logging.Logger
}

func NewAddressTypeFetcher(chain CodeReader, store AddressMetadataWriter, logger *logging.Logger) *AddressTypeFetcher {
	return &AddressTypeFetcher{chain: chain, store: store, logger: logger}
}

func (f *AddressTypeFetcher) Handle(ctx context.Context, job *queue.Job) error {
	var payload FetchAddressTypePayload
	if err := job.UnmarshalPayload(&payload); err != nil {
		return apperrors.NewDecodeError(queue.JobFetchAddressType, err)
	}

	if payload.Address == "" {
		return apperrors.NewInternalError("fetch-address-type job without an address", nil)
	}

	code, err := f.chain.CodeAt(ctx, common.HexToAddress(payload.Address))
	if err != nil {
		return err
	}

	isContract := len(code) > 0
	if err := f.store.Upsert(ctx, payload.Address, isContract); err != nil {
		return err
	}

	f.logger.WithFields(map[string]interface{}{
		"address":    payload.Address,
		"isContract": isContract,
	}).Debug("classified address")

	return nil
}
