// Package errors provides categorized errors for the ingestion pipeline.
// Categories drive the queue's retry policy: deterministic failures
// (invalid input, decode mismatches) are never retried, transient ones
// (provider, database, premature not-found) are.
package errors

import (
	"fmt"

	"github.com/fill-tracker/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryUserInput represents invalid job input errors
	CategoryUserInput ErrorCategory = "user_input"
	// CategoryNotFound represents chain data not found errors
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryDecode represents log decode mismatch errors
	CategoryDecode ErrorCategory = "decode"
	// CategoryProvider represents data provider errors
	CategoryProvider ErrorCategory = "provider"
	// CategoryDatabase represents database errors
	CategoryDatabase ErrorCategory = "database"
	// CategorySystem represents unexpected internal errors
	CategorySystem ErrorCategory = "system"
)

// CategorizedError represents an error with a category and stable code
type CategorizedError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Details  map[string]interface{}
	Cause    error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (caused by: %v)", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// ToServiceError converts to a ServiceError
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// NewInvalidTransactionHashError creates an invalid transaction hash error.
// The offending value is rendered literally, including "null" for an absent
// field, so operators can tell the difference between a missing and an
// empty hash.
func NewInvalidTransactionHashError(value string) *CategorizedError {
	return &CategorizedError{
		Category: CategoryUserInput,
		Code:     "INVALID_TRANSACTION_HASH",
		Message:  fmt.Sprintf("Invalid transactionHash: %s", value),
		Details: map[string]interface{}{
			"transactionHash": value,
		},
	}
}

// NewBlockNotFoundError creates a block not found error
func NewBlockNotFoundError(blockNumber uint64) *CategorizedError {
	return &CategorizedError{
		Category: CategoryNotFound,
		Code:     "BLOCK_NOT_FOUND",
		Message:  fmt.Sprintf("Block not found: %d", blockNumber),
		Details: map[string]interface{}{
			"blockNumber": blockNumber,
		},
	}
}

// NewTransactionNotFoundError creates a transaction not found error
func NewTransactionNotFoundError(hash string) *CategorizedError {
	return &CategorizedError{
		Category: CategoryNotFound,
		Code:     "TRANSACTION_NOT_FOUND",
		Message:  fmt.Sprintf("Transaction not found: %s", hash),
		Details: map[string]interface{}{
			"transactionHash": hash,
		},
	}
}

// NewDecodeError creates a log decode error. A topic that matches a known
// signature but carries non-conforming data corrupts downstream valuation
// if swallowed, so these are fatal to the job.
func NewDecodeError(topic string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategoryDecode,
		Code:     "LOG_DECODE_FAILED",
		Message:  fmt.Sprintf("failed to decode log with topic %s", topic),
		Cause:    cause,
		Details: map[string]interface{}{
			"topic": topic,
		},
	}
}

// NewDatabaseError creates a database error
func NewDatabaseError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategoryDatabase,
		Code:     "DATABASE_ERROR",
		Message:  fmt.Sprintf("database error during %s", operation),
		Cause:    cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewProviderError creates a data provider error
func NewProviderError(provider string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategoryProvider,
		Code:     "PROVIDER_ERROR",
		Message:  fmt.Sprintf("data provider error: %s", provider),
		Cause:    cause,
		Details: map[string]interface{}{
			"provider": provider,
		},
	}
}

// NewInternalError creates an internal error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategorySystem,
		Code:     "INTERNAL_ERROR",
		Message:  message,
		Cause:    cause,
	}
}

// Categorize categorizes an existing error
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	if catErr, ok := err.(*CategorizedError); ok {
		return catErr
	}

	return NewInternalError("unexpected error", err)
}

// IsRetryable determines if an error is worth retrying at the queue level.
// Not-found errors are retryable: they usually indicate a job scheduled
// before the chain data was visible to the RPC node.
func IsRetryable(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	switch catErr.Category {
	case CategoryProvider, CategoryDatabase, CategoryNotFound, CategorySystem:
		return true
	default:
		return false
	}
}
