package ledger

// SeedBalance is a test helper that overwrites a wallet balance when using the
// in-memory store. It bypasses the engine and records no transaction.
func SeedBalance(s Store, walletID string, amount int64) {
	if mem, ok := s.(*InMemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		if row, exists := mem.wallets[walletID]; exists {
			row.wallet.Balance = amount
		}
	}
}

// TotalBalance sums every wallet balance held by an in-memory store.
func TotalBalance(s Store) int64 {
	mem, ok := s.(*InMemoryStore)
	if !ok {
		return 0
	}
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	var total int64
	for _, row := range mem.wallets {
		total += row.wallet.Balance
	}
	return total
}
