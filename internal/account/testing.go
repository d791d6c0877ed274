package account

import "github.com/congo-pay/digiwallet/internal/money"

// SeedBalance is a test helper that overwrites the stored balance of an
// account held by the in-memory store, bypassing the version guard.
func SeedBalance(s Store, id string, amount money.Amount) {
	if mem, ok := s.(*memoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		acct := mem.byID[id]
		acct.Balance = amount
		mem.byID[id] = acct
	}
}
