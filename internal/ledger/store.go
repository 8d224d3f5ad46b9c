package ledger

import "context"

// Store is the durable home of wallets and transactions. Implementations must
// run each WithinTx callback as one atomic, isolated unit: either every write
// made through the Tx is committed or none is.
type Store interface {
	// WithinTx runs fn inside a unit of work. A non-nil error from fn, a
	// cancelled ctx, or a failed commit discards all writes.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	CreateWallet(ctx context.Context, wallet Wallet) error
	GetWallet(ctx context.Context, id string) (Wallet, error)

	// FindTransactionByKey returns ErrNotFound when no committed transaction
	// carries the key.
	FindTransactionByKey(ctx context.Context, key string) (Transaction, error)

	// Statement returns a wallet and every transaction it sent or received,
	// oldest first, read from one consistent snapshot. Missing wallets yield
	// ErrNotFound.
	Statement(ctx context.Context, walletID string) (Wallet, []Transaction, error)
}

// Tx is the view of the store inside a unit of work.
type Tx interface {
	// LockWallets locks the given wallets in ascending ID order and returns the
	// ones that exist. Missing IDs are simply absent from the map.
	LockWallets(ctx context.Context, ids ...string) (map[string]Wallet, error)

	// UpdateBalance sets the balance of a wallet previously locked in this unit.
	UpdateBalance(ctx context.Context, id string, balance int64) error

	// InsertTransaction records a transaction. It fails with ErrDuplicateKey if
	// the idempotency key is already taken.
	InsertTransaction(ctx context.Context, txn Transaction) error
}
