package models

import (
	"time"
)

// Transaction represents a mined Ethereum transaction. It is written exactly
// once by the fetch-transaction consumer and never mutated afterwards.
type Transaction struct {
	Hash        string    `json:"hash"`
	BlockHash   string    `json:"blockHash"`
	BlockNumber uint64    `json:"blockNumber"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Data        string    `json:"data"`
	GasLimit    uint64    `json:"gasLimit"`
	GasPrice    string    `json:"gasPrice"`
	GasUsed     uint64    `json:"gasUsed"`
	Nonce       uint64    `json:"nonce"`
	Index       uint      `json:"index"`
	Value       string    `json:"value"`
	Date        time.Time `json:"date"`
	// QuoteDate is the reference timestamp used for historical pricing of
	// fills derived from this transaction.
	QuoteDate time.Time `json:"quoteDate"`
}
