package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
	pgQueryCanceled        = "57014"
	pgAdminShutdown        = "57P01"

	idempotencyKeyConstraint = "transactions_idempotency_key_key"
)

// Schema creates the wallet and transaction tables used by PostgresStore.
const Schema = `
CREATE TABLE IF NOT EXISTS wallets (
    id          UUID PRIMARY KEY,
    currency    CHAR(3) NOT NULL,
    balance     BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
    created_at  TIMESTAMPTZ NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS transactions (
    id                  UUID PRIMARY KEY,
    type                VARCHAR(16) NOT NULL,
    amount              BIGINT NOT NULL CHECK (amount > 0),
    sender_wallet_id    UUID REFERENCES wallets (id),
    receiver_wallet_id  UUID NOT NULL REFERENCES wallets (id),
    status              VARCHAR(16) NOT NULL,
    idempotency_key     VARCHAR(255),
    created_at          TIMESTAMPTZ NOT NULL,
    CONSTRAINT transactions_idempotency_key_key UNIQUE (idempotency_key)
);

CREATE INDEX IF NOT EXISTS transactions_sender_idx ON transactions (sender_wallet_id);
CREATE INDEX IF NOT EXISTS transactions_receiver_idx ON transactions (receiver_wallet_id);
`

// PostgresStore persists wallets and transactions in PostgreSQL. Units of work
// lock wallet rows with SELECT ... FOR UPDATE in ascending id order.
type PostgresStore struct {
	db          *pgxpool.Pool
	lockTimeout time.Duration
}

// NewPostgresStore constructs a Postgres-backed store. A positive lockTimeout
// bounds how long a unit waits for a wallet row lock.
func NewPostgresStore(db *pgxpool.Pool, lockTimeout time.Duration) *PostgresStore {
	return &PostgresStore{db: db, lockTimeout: lockTimeout}
}

// Migrate applies Schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply ledger schema: %w", err)
	}
	return nil
}

// CreateWallet inserts a wallet record.
func (s *PostgresStore) CreateWallet(ctx context.Context, wallet Wallet) error {
	id, err := uuid.Parse(wallet.ID)
	if err != nil {
		return fmt.Errorf("wallet id %q: %w", wallet.ID, ErrInvalidOperation)
	}
	_, err = s.db.Exec(ctx, `INSERT INTO wallets (id, currency, balance, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5)`, id, wallet.Currency, wallet.Balance, wallet.CreatedAt.UTC(), wallet.UpdatedAt.UTC())
	return mapPgError(err)
}

// GetWallet fetches a wallet by identifier.
func (s *PostgresStore) GetWallet(ctx context.Context, id string) (Wallet, error) {
	walletID, err := uuid.Parse(id)
	if err != nil {
		return Wallet{}, fmt.Errorf("wallet %s: %w", id, ErrNotFound)
	}
	row := s.db.QueryRow(ctx, `SELECT id, currency, balance, created_at, updated_at
        FROM wallets WHERE id = $1`, walletID)
	w, err := scanWallet(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Wallet{}, fmt.Errorf("wallet %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Wallet{}, mapPgError(err)
	}
	return w, nil
}

// FindTransactionByKey looks up a committed transaction by idempotency key.
func (s *PostgresStore) FindTransactionByKey(ctx context.Context, key string) (Transaction, error) {
	row := s.db.QueryRow(ctx, `SELECT id, type, amount, sender_wallet_id, receiver_wallet_id, status, idempotency_key, created_at
        FROM transactions WHERE idempotency_key = $1`, key)
	txn, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, fmt.Errorf("transaction with key %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return Transaction{}, mapPgError(err)
	}
	return txn, nil
}

// Statement reads the wallet and its sent and received transactions, oldest
// first, inside one REPEATABLE READ snapshot.
func (s *PostgresStore) Statement(ctx context.Context, walletID string) (Wallet, []Transaction, error) {
	id, err := uuid.Parse(walletID)
	if err != nil {
		return Wallet{}, nil, fmt.Errorf("wallet %s: %w", walletID, ErrNotFound)
	}
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return Wallet{}, nil, mapPgError(err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	w, err := scanWallet(tx.QueryRow(ctx, `SELECT id, currency, balance, created_at, updated_at
        FROM wallets WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Wallet{}, nil, fmt.Errorf("wallet %s: %w", walletID, ErrNotFound)
	}
	if err != nil {
		return Wallet{}, nil, mapPgError(err)
	}

	rows, err := tx.Query(ctx, `SELECT id, type, amount, sender_wallet_id, receiver_wallet_id, status, idempotency_key, created_at
        FROM transactions
        WHERE sender_wallet_id = $1 OR receiver_wallet_id = $1
        ORDER BY created_at, id`, id)
	if err != nil {
		return Wallet{}, nil, mapPgError(err)
	}
	defer rows.Close()

	out := []Transaction{}
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return Wallet{}, nil, mapPgError(err)
		}
		out = append(out, txn)
	}
	if err := rows.Err(); err != nil {
		return Wallet{}, nil, mapPgError(err)
	}
	rows.Close()
	if err := tx.Commit(ctx); err != nil {
		return Wallet{}, nil, mapPgError(err)
	}
	return w, out, nil
}

// WithinTx runs fn inside a READ COMMITTED transaction. Row locks taken by
// LockWallets provide the isolation each unit needs.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return mapPgError(err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if s.lockTimeout > 0 {
		// SET does not take bind parameters.
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return mapPgError(err)
		}
	}

	if err := fn(&postgresTx{tx: tx}); err != nil {
		return mapPgError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return mapPgError(err)
	}
	return nil
}

type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) LockWallets(ctx context.Context, ids ...string) (map[string]Wallet, error) {
	parsed := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		u, err := uuid.Parse(id)
		if err != nil {
			// Not a UUID, so no such wallet.
			continue
		}
		parsed = append(parsed, u)
	}
	if len(parsed) == 0 {
		return map[string]Wallet{}, nil
	}
	rows, err := t.tx.Query(ctx, `SELECT id, currency, balance, created_at, updated_at
        FROM wallets WHERE id = ANY($1) ORDER BY id FOR UPDATE`, parsed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	found := make(map[string]Wallet, len(parsed))
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		found[w.ID] = w
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Callers index by the id they passed in, which may differ in case.
	out := make(map[string]Wallet, len(ids))
	for _, id := range ids {
		u, err := uuid.Parse(id)
		if err != nil {
			continue
		}
		if w, ok := found[u.String()]; ok {
			out[id] = w
		}
	}
	return out, nil
}

func (t *postgresTx) UpdateBalance(ctx context.Context, id string, balance int64) error {
	walletID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("wallet %s: %w", id, ErrNotFound)
	}
	tag, err := t.tx.Exec(ctx, `UPDATE wallets SET balance = $2, updated_at = now() WHERE id = $1`, walletID, balance)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("wallet %s: %w", id, ErrNotFound)
	}
	return nil
}

func (t *postgresTx) InsertTransaction(ctx context.Context, txn Transaction) error {
	id, err := uuid.Parse(txn.ID)
	if err != nil {
		return fmt.Errorf("transaction id %q: %w", txn.ID, ErrInvalidOperation)
	}
	receiver, err := uuid.Parse(txn.ReceiverWalletID)
	if err != nil {
		return fmt.Errorf("receiver wallet %s: %w", txn.ReceiverWalletID, ErrNotFound)
	}
	var sender *uuid.UUID
	if txn.SenderWalletID != "" {
		u, err := uuid.Parse(txn.SenderWalletID)
		if err != nil {
			return fmt.Errorf("sender wallet %s: %w", txn.SenderWalletID, ErrNotFound)
		}
		sender = &u
	}
	var key *string
	if txn.IdempotencyKey != "" {
		key = &txn.IdempotencyKey
	}

	_, err = t.tx.Exec(ctx, `INSERT INTO transactions
        (id, type, amount, sender_wallet_id, receiver_wallet_id, status, idempotency_key, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, string(txn.Type), txn.Amount, sender, receiver, string(txn.Status), key, txn.CreatedAt.UTC())
	return err
}

func scanWallet(row pgx.Row) (Wallet, error) {
	var (
		w  Wallet
		id uuid.UUID
	)
	if err := row.Scan(&id, &w.Currency, &w.Balance, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return Wallet{}, err
	}
	w.ID = id.String()
	w.CreatedAt = w.CreatedAt.UTC()
	w.UpdatedAt = w.UpdatedAt.UTC()
	return w, nil
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		txn      Transaction
		id       uuid.UUID
		sender   *uuid.UUID
		receiver uuid.UUID
		kind     string
		status   string
		key      *string
	)
	if err := row.Scan(&id, &kind, &txn.Amount, &sender, &receiver, &status, &key, &txn.CreatedAt); err != nil {
		return Transaction{}, err
	}
	txn.ID = id.String()
	txn.Type = TransactionType(kind)
	txn.Status = TransactionStatus(status)
	txn.ReceiverWalletID = receiver.String()
	if sender != nil {
		txn.SenderWalletID = sender.String()
	}
	if key != nil {
		txn.IdempotencyKey = *key
	}
	txn.CreatedAt = txn.CreatedAt.UTC()
	return txn, nil
}

// mapPgError translates driver failures into ledger error kinds. Domain errors
// pass through unchanged.
func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidOperation) ||
		errors.Is(err, ErrInsufficientFunds) || errors.Is(err, ErrTransient) ||
		errors.Is(err, ErrDuplicateKey) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return transientCtx(err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			if pgErr.ConstraintName == idempotencyKeyConstraint {
				return ErrDuplicateKey
			}
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable, pgQueryCanceled, pgAdminShutdown:
			return fmt.Errorf("%w: %s (%s)", ErrTransient, pgErr.Message, pgErr.Code)
		}
		return err
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	return err
}
