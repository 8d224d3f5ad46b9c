package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/wallet_ledger/internal/logging"
)

const (
	defaultOperationTimeout = 5 * time.Second
	defaultCurrency         = "NGN"

	// MaxIdempotencyKeyLength bounds caller-supplied keys.
	MaxIdempotencyKeyLength = 255

	opFund     = "fund"
	opTransfer = "transfer"
)

// Recorder receives per-operation measurements from the engine.
type Recorder interface {
	RecordOperation(op, outcome string, d time.Duration)
	RecordVolume(op string, amount int64)
}

// NoopRecorder discards all measurements.
type NoopRecorder struct{}

func (NoopRecorder) RecordOperation(string, string, time.Duration) {}
func (NoopRecorder) RecordVolume(string, int64)                    {}

// Engine performs Fund and Transfer as atomic units against a Store and
// de-duplicates retried requests by idempotency key.
type Engine struct {
	store           Store
	logger          *slog.Logger
	metrics         Recorder
	timeout         time.Duration
	defaultCurrency string
	now             func() time.Time
	newID           func() string
}

// Option customises an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithRecorder sets the metrics sink.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.metrics = r
		}
	}
}

// WithOperationTimeout bounds every store interaction of a single operation.
func WithOperationTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithDefaultCurrency sets the currency used when CreateWallet gets none.
func WithDefaultCurrency(code string) Option {
	return func(e *Engine) {
		if code != "" {
			e.defaultCurrency = strings.ToUpper(code)
		}
	}
}

// NewEngine builds an engine bound to the given store.
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:           store,
		logger:          logging.Discard(),
		metrics:         NoopRecorder{},
		timeout:         defaultOperationTimeout,
		defaultCurrency: defaultCurrency,
		now:             func() time.Time { return time.Now().UTC() },
		newID:           uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateWallet provisions an empty wallet in the given currency.
func (e *Engine) CreateWallet(ctx context.Context, currency string) (Wallet, error) {
	code := strings.ToUpper(strings.TrimSpace(currency))
	if code == "" {
		code = e.defaultCurrency
	}
	if !validCurrency(code) {
		return Wallet{}, ErrInvalidCurrency
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	now := e.now()
	wallet := Wallet{
		ID:        e.newID(),
		Currency:  code,
		Balance:   0,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.CreateWallet(ctx, wallet); err != nil {
		return Wallet{}, classify(err)
	}
	return wallet, nil
}

// GetWallet returns the latest committed state of a wallet.
func (e *Engine) GetWallet(ctx context.Context, id string) (Wallet, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	w, err := e.store.GetWallet(ctx, id)
	if err != nil {
		return Wallet{}, classify(err)
	}
	return w, nil
}

// History returns the transactions a wallet sent or received, oldest first.
func (e *Engine) History(ctx context.Context, walletID string) ([]Transaction, error) {
	_, txns, err := e.Statement(ctx, walletID)
	return txns, err
}

// Statement returns the wallet together with its history. The balance always
// equals the net of the returned transactions.
func (e *Engine) Statement(ctx context.Context, walletID string) (Wallet, []Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	w, txns, err := e.store.Statement(ctx, walletID)
	if err != nil {
		return Wallet{}, nil, classify(err)
	}
	return w, txns, nil
}

// FindByKey resolves an idempotency key to its committed transaction.
func (e *Engine) FindByKey(ctx context.Context, key string) (Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	txn, err := e.store.FindTransactionByKey(ctx, key)
	if err != nil {
		return Transaction{}, classify(err)
	}
	return txn, nil
}

// Fund credits a wallet by amount and records a FUND transaction.
func (e *Engine) Fund(ctx context.Context, in FundInput) (res FundResult, err error) {
	start := time.Now()
	defer func() { e.observe(opFund, start, in.Amount, res.Replayed, err) }()

	if in.Amount <= 0 {
		return FundResult{}, ErrInvalidAmount
	}
	if err := validateKey(in.IdempotencyKey); err != nil {
		return FundResult{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if prior, found, err := e.lookupKey(ctx, in.IdempotencyKey); err != nil {
		return FundResult{}, err
	} else if found {
		return e.fundReplay(ctx, prior)
	}

	var out FundResult
	err = e.store.WithinTx(ctx, func(tx Tx) error {
		wallets, err := tx.LockWallets(ctx, in.WalletID)
		if err != nil {
			return err
		}
		w, ok := wallets[in.WalletID]
		if !ok {
			return fmt.Errorf("wallet %s: %w", in.WalletID, ErrNotFound)
		}
		if w.Balance > math.MaxInt64-in.Amount {
			return fmt.Errorf("wallet %s balance overflow: %w", w.ID, ErrInvalidAmount)
		}
		w.Balance += in.Amount
		if err := tx.UpdateBalance(ctx, w.ID, w.Balance); err != nil {
			return err
		}

		txn := Transaction{
			ID:               e.newID(),
			Type:             TypeFund,
			Amount:           in.Amount,
			ReceiverWalletID: w.ID,
			Status:           StatusSuccess,
			IdempotencyKey:   in.IdempotencyKey,
			CreatedAt:        e.now(),
		}
		if err := tx.InsertTransaction(ctx, txn); err != nil {
			return err
		}
		w.UpdatedAt = txn.CreatedAt
		out = FundResult{Wallet: w, Transaction: txn}
		return nil
	})
	if errors.Is(err, ErrDuplicateKey) {
		return e.resolveFundConflict(ctx, in.IdempotencyKey)
	}
	if err != nil {
		return FundResult{}, e.fail(opFund, err)
	}
	return out, nil
}

// Transfer moves amount from sender to receiver and records a TRANSFER
// transaction. Checks run in a fixed order so the surfaced error is stable:
// self-transfer, sender existence, sender balance, receiver existence.
func (e *Engine) Transfer(ctx context.Context, in TransferInput) (res TransferResult, err error) {
	start := time.Now()
	defer func() { e.observe(opTransfer, start, in.Amount, res.Replayed, err) }()

	if in.Amount <= 0 {
		return TransferResult{}, ErrInvalidAmount
	}
	if in.SenderID == in.ReceiverID {
		return TransferResult{}, ErrSelfTransfer
	}
	if err := validateKey(in.IdempotencyKey); err != nil {
		return TransferResult{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if prior, found, err := e.lookupKey(ctx, in.IdempotencyKey); err != nil {
		return TransferResult{}, err
	} else if found {
		return e.transferReplay(ctx, prior)
	}

	var out TransferResult
	err = e.store.WithinTx(ctx, func(tx Tx) error {
		wallets, err := tx.LockWallets(ctx, in.SenderID, in.ReceiverID)
		if err != nil {
			return err
		}
		sender, ok := wallets[in.SenderID]
		if !ok {
			return fmt.Errorf("%s: %w", in.SenderID, ErrSenderNotFound)
		}
		if sender.Balance < in.Amount {
			return fmt.Errorf("wallet %s has %d, needs %d: %w", sender.ID, sender.Balance, in.Amount, ErrInsufficientFunds)
		}
		receiver, ok := wallets[in.ReceiverID]
		if !ok {
			return fmt.Errorf("%s: %w", in.ReceiverID, ErrReceiverNotFound)
		}
		// Two spellings of one id.
		if receiver.ID == sender.ID {
			return ErrSelfTransfer
		}
		if receiver.Balance > math.MaxInt64-in.Amount {
			return fmt.Errorf("wallet %s balance overflow: %w", receiver.ID, ErrInvalidAmount)
		}

		sender.Balance -= in.Amount
		receiver.Balance += in.Amount
		if err := tx.UpdateBalance(ctx, sender.ID, sender.Balance); err != nil {
			return err
		}
		if err := tx.UpdateBalance(ctx, receiver.ID, receiver.Balance); err != nil {
			return err
		}

		txn := Transaction{
			ID:               e.newID(),
			Type:             TypeTransfer,
			Amount:           in.Amount,
			SenderWalletID:   sender.ID,
			ReceiverWalletID: receiver.ID,
			Status:           StatusSuccess,
			IdempotencyKey:   in.IdempotencyKey,
			CreatedAt:        e.now(),
		}
		if err := tx.InsertTransaction(ctx, txn); err != nil {
			return err
		}
		sender.UpdatedAt = txn.CreatedAt
		receiver.UpdatedAt = txn.CreatedAt
		out = TransferResult{Transaction: txn, Sender: sender, Receiver: receiver}
		return nil
	})
	if errors.Is(err, ErrDuplicateKey) {
		return e.resolveTransferConflict(ctx, in.IdempotencyKey)
	}
	if err != nil {
		return TransferResult{}, e.fail(opTransfer, err)
	}
	return out, nil
}

func (e *Engine) lookupKey(ctx context.Context, key string) (Transaction, bool, error) {
	if key == "" {
		return Transaction{}, false, nil
	}
	txn, err := e.store.FindTransactionByKey(ctx, key)
	switch {
	case err == nil:
		return txn, true, nil
	case errors.Is(err, ErrNotFound):
		return Transaction{}, false, nil
	default:
		return Transaction{}, false, classify(err)
	}
}

func (e *Engine) fundReplay(ctx context.Context, prior Transaction) (FundResult, error) {
	e.logger.Debug("idempotent replay", slog.String("op", opFund), slog.String("transaction_id", prior.ID))
	w, err := e.store.GetWallet(ctx, prior.ReceiverWalletID)
	if err != nil {
		return FundResult{}, classify(err)
	}
	return FundResult{Wallet: w, Transaction: prior, Replayed: true}, nil
}

func (e *Engine) transferReplay(ctx context.Context, prior Transaction) (TransferResult, error) {
	e.logger.Debug("idempotent replay", slog.String("op", opTransfer), slog.String("transaction_id", prior.ID))
	res := TransferResult{Transaction: prior, Replayed: true}
	if prior.SenderWalletID != "" {
		sender, err := e.store.GetWallet(ctx, prior.SenderWalletID)
		if err != nil {
			return TransferResult{}, classify(err)
		}
		res.Sender = sender
	}
	receiver, err := e.store.GetWallet(ctx, prior.ReceiverWalletID)
	if err != nil {
		return TransferResult{}, classify(err)
	}
	res.Receiver = receiver
	return res, nil
}

// A concurrent caller committed the same key first; its record is the answer.
func (e *Engine) resolveFundConflict(ctx context.Context, key string) (FundResult, error) {
	prior, found, err := e.lookupKey(ctx, key)
	if err != nil {
		return FundResult{}, err
	}
	if !found {
		return FundResult{}, fmt.Errorf("key %q conflicted but is not visible: %w", key, ErrTransient)
	}
	return e.fundReplay(ctx, prior)
}

func (e *Engine) resolveTransferConflict(ctx context.Context, key string) (TransferResult, error) {
	prior, found, err := e.lookupKey(ctx, key)
	if err != nil {
		return TransferResult{}, err
	}
	if !found {
		return TransferResult{}, fmt.Errorf("key %q conflicted but is not visible: %w", key, ErrTransient)
	}
	return e.transferReplay(ctx, prior)
}

func (e *Engine) fail(op string, err error) error {
	err = classify(err)
	if errors.Is(err, ErrTransient) {
		e.logger.Warn("ledger operation failed", slog.String("op", op), slog.Any("error", err))
	}
	return err
}

func (e *Engine) observe(op string, start time.Time, amount int64, replayed bool, err error) {
	outcome := Outcome(err)
	if err == nil && replayed {
		outcome = "replayed"
	}
	e.metrics.RecordOperation(op, outcome, time.Since(start))
	if err == nil && !replayed {
		e.metrics.RecordVolume(op, amount)
	}
}

// Outcome labels an engine error for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrInvalidOperation):
		return "invalid"
	case errors.Is(err, ErrTransient):
		return "transient"
	default:
		return "error"
	}
}

// classify folds context expiry into ErrTransient and leaves domain errors intact.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidOperation) || errors.Is(err, ErrInsufficientFunds) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return transientCtx(err)
	}
	return fmt.Errorf("ledger: %w", err)
}

func validateKey(key string) error {
	if len(key) > MaxIdempotencyKeyLength {
		return fmt.Errorf("%w: idempotency key longer than %d", ErrInvalidOperation, MaxIdempotencyKeyLength)
	}
	return nil
}

func validCurrency(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
