package ledger

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound indicates a referenced wallet, or a transaction looked up by
	// idempotency key, does not exist.
	ErrNotFound = errors.New("not found")

	// ErrSenderNotFound and ErrReceiverNotFound name the missing side of a transfer.
	ErrSenderNotFound   = fmt.Errorf("sender wallet %w", ErrNotFound)
	ErrReceiverNotFound = fmt.Errorf("receiver wallet %w", ErrNotFound)

	// ErrInvalidOperation covers requests that break a business rule regardless
	// of current state.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrInvalidAmount is returned for non-positive amounts or amounts that would
	// overflow a balance.
	ErrInvalidAmount = fmt.Errorf("%w: invalid amount", ErrInvalidOperation)

	// ErrSelfTransfer rejects transfers whose sender and receiver are the same wallet.
	ErrSelfTransfer = fmt.Errorf("%w: cannot transfer to self", ErrInvalidOperation)

	// ErrInvalidCurrency rejects wallet creation with a malformed currency code.
	ErrInvalidCurrency = fmt.Errorf("%w: invalid currency", ErrInvalidOperation)

	// ErrInsufficientFunds occurs when the sender lacks available balance
	// to cover a requested transfer.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrTransient marks store failures that are safe to retry with the same
	// idempotency key: timeouts, lock waits, lost connections.
	ErrTransient = errors.New("transient store failure")

	// ErrDuplicateKey is raised by stores when a transaction's idempotency key is
	// already committed. The engine resolves it by returning the existing record.
	ErrDuplicateKey = errors.New("duplicate idempotency key")
)

// TransactionType distinguishes ledger entries.
type TransactionType string

const (
	TypeFund     TransactionType = "FUND"
	TypeTransfer TransactionType = "TRANSFER"
)

// TransactionStatus is the terminal state of a ledger entry.
type TransactionStatus string

const (
	StatusSuccess TransactionStatus = "SUCCESS"
	// StatusFailed is part of the data model but never persisted by the engine.
	StatusFailed TransactionStatus = "FAILED"
)

// Wallet is a single-currency account holding a non-negative balance in minor units.
type Wallet struct {
	ID        string    `json:"id"`
	Currency  string    `json:"currency"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Transaction is the immutable record of one committed Fund or Transfer.
type Transaction struct {
	ID               string            `json:"id"`
	Type             TransactionType   `json:"type"`
	Amount           int64             `json:"amount"`
	SenderWalletID   string            `json:"senderWalletId,omitempty"`
	ReceiverWalletID string            `json:"receiverWalletId"`
	Status           TransactionStatus `json:"status"`
	IdempotencyKey   string            `json:"idempotencyKey,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
}

// FundInput captures the data needed to credit a wallet.
type FundInput struct {
	WalletID       string
	Amount         int64
	IdempotencyKey string
}

// FundResult describes the outcome of a funding. Replayed is set when the
// transaction was already committed under the same idempotency key.
type FundResult struct {
	Wallet      Wallet
	Transaction Transaction
	Replayed    bool
}

// TransferInput captures the data needed to move funds between wallets.
type TransferInput struct {
	SenderID       string
	ReceiverID     string
	Amount         int64
	IdempotencyKey string
}

// TransferResult describes the outcome of a transfer. Sender and Receiver hold
// the balances observed right after commit; on replay they hold current state.
type TransferResult struct {
	Transaction Transaction
	Sender      Wallet
	Receiver    Wallet
	Replayed    bool
}
