package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// walletRow pairs a wallet with its row lock. The lock is a one-slot channel so
// waiters can give up when their context ends.
type walletRow struct {
	lock   chan struct{}
	wallet Wallet
}

// InMemoryStore is a concurrency-safe Store for tests and local development.
// Row locks serialize units of work touching the same wallet; mu guards the
// maps and committed values.
type InMemoryStore struct {
	mu           sync.RWMutex
	wallets      map[string]*walletRow
	transactions []Transaction
	byKey        map[string]int
	byWallet     map[string][]int
	now          func() time.Time
}

// NewInMemory creates an empty in-memory store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		wallets:  make(map[string]*walletRow),
		byKey:    make(map[string]int),
		byWallet: make(map[string][]int),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *InMemoryStore) CreateWallet(_ context.Context, wallet Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.wallets[wallet.ID]; exists {
		return fmt.Errorf("wallet %s already exists", wallet.ID)
	}
	s.wallets[wallet.ID] = &walletRow{lock: make(chan struct{}, 1), wallet: wallet}
	return nil
}

func (s *InMemoryStore) GetWallet(_ context.Context, id string) (Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.wallets[id]
	if !ok {
		return Wallet{}, fmt.Errorf("wallet %s: %w", id, ErrNotFound)
	}
	return row.wallet, nil
}

func (s *InMemoryStore) FindTransactionByKey(_ context.Context, key string) (Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byKey[key]
	if !ok {
		return Transaction{}, fmt.Errorf("transaction with key %q: %w", key, ErrNotFound)
	}
	return s.transactions[idx], nil
}

func (s *InMemoryStore) Statement(_ context.Context, walletID string) (Wallet, []Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.wallets[walletID]
	if !ok {
		return Wallet{}, nil, fmt.Errorf("wallet %s: %w", walletID, ErrNotFound)
	}
	idxs := s.byWallet[walletID]
	out := make([]Transaction, 0, len(idxs))
	for _, idx := range idxs {
		out = append(out, s.transactions[idx])
	}
	return row.wallet, out, nil
}

func (s *InMemoryStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return transientCtx(err)
	}

	tx := &inMemoryTx{
		store:    s,
		locked:   make(map[string]*walletRow),
		balances: make(map[string]int64),
	}
	defer tx.release()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.commit(ctx)
}

type inMemoryTx struct {
	store    *InMemoryStore
	locked   map[string]*walletRow
	order    []*walletRow
	balances map[string]int64
	pending  []Transaction
}

func (t *inMemoryTx) LockWallets(ctx context.Context, ids ...string) (map[string]Wallet, error) {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	for _, id := range sorted {
		if _, held := t.locked[id]; held {
			continue
		}
		t.store.mu.RLock()
		row, ok := t.store.wallets[id]
		t.store.mu.RUnlock()
		if !ok {
			continue
		}
		select {
		case row.lock <- struct{}{}:
		case <-ctx.Done():
			return nil, transientCtx(ctx.Err())
		}
		t.locked[id] = row
		t.order = append(t.order, row)
	}

	out := make(map[string]Wallet, len(ids))
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	for _, id := range ids {
		row, ok := t.locked[id]
		if !ok {
			continue
		}
		w := row.wallet
		if bal, staged := t.balances[id]; staged {
			w.Balance = bal
		}
		out[id] = w
	}
	return out, nil
}

func (t *inMemoryTx) UpdateBalance(_ context.Context, id string, balance int64) error {
	if _, ok := t.locked[id]; !ok {
		return fmt.Errorf("wallet %s is not locked in this transaction", id)
	}
	if balance < 0 {
		return fmt.Errorf("wallet %s: negative balance %d: %w", id, balance, ErrInvalidOperation)
	}
	t.balances[id] = balance
	return nil
}

func (t *inMemoryTx) InsertTransaction(_ context.Context, txn Transaction) error {
	if txn.IdempotencyKey != "" {
		for _, p := range t.pending {
			if p.IdempotencyKey == txn.IdempotencyKey {
				return ErrDuplicateKey
			}
		}
		t.store.mu.RLock()
		_, taken := t.store.byKey[txn.IdempotencyKey]
		t.store.mu.RUnlock()
		if taken {
			return ErrDuplicateKey
		}
	}
	t.pending = append(t.pending, txn)
	return nil
}

func (t *inMemoryTx) commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return transientCtx(err)
	}

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	// The key check is repeated under the write lock: it is the uniqueness
	// constraint, the check in InsertTransaction only fails fast.
	for _, txn := range t.pending {
		if txn.IdempotencyKey == "" {
			continue
		}
		if _, taken := s.byKey[txn.IdempotencyKey]; taken {
			return ErrDuplicateKey
		}
	}

	now := s.now()
	for id, bal := range t.balances {
		row := t.locked[id]
		row.wallet.Balance = bal
		row.wallet.UpdatedAt = now
	}
	for _, txn := range t.pending {
		idx := len(s.transactions)
		s.transactions = append(s.transactions, txn)
		if txn.IdempotencyKey != "" {
			s.byKey[txn.IdempotencyKey] = idx
		}
		if txn.SenderWalletID != "" {
			s.byWallet[txn.SenderWalletID] = append(s.byWallet[txn.SenderWalletID], idx)
		}
		s.byWallet[txn.ReceiverWalletID] = append(s.byWallet[txn.ReceiverWalletID], idx)
	}
	return nil
}

func (t *inMemoryTx) release() {
	for i := len(t.order) - 1; i >= 0; i-- {
		<-t.order[i].lock
	}
	t.order = nil
}

func transientCtx(err error) error {
	return fmt.Errorf("%w: %w", ErrTransient, err)
}
