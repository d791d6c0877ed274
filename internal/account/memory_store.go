package account

import (
	"context"
	"fmt"
	"sync"
)

type memoryStore struct {
	mu       sync.RWMutex
	byID     map[string]Account
	byEmail  map[string]string
	byMobile map[string]string
}

// NewMemoryStore creates a concurrency-safe in-memory store useful for unit
// tests and local development.
func NewMemoryStore() Store {
	return &memoryStore{
		byID:     make(map[string]Account),
		byEmail:  make(map[string]string),
		byMobile: make(map[string]string),
	}
}

func (s *memoryStore) FindByIdentifier(_ context.Context, kind IdentifierKind, value string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		id string
		ok bool
	)
	switch kind {
	case KindEmail:
		id, ok = s.byEmail[NormalizeEmail(value)]
	case KindMobile:
		id, ok = s.byMobile[value]
	case KindID:
		id, ok = value, true
	default:
		return Account{}, fmt.Errorf("%w: unknown identifier kind %q", ErrInvalidIdentity, kind)
	}
	if !ok {
		return Account{}, ErrNotFound
	}
	acct, ok := s.byID[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	return acct.clone(), nil
}

func (s *memoryStore) FindByID(ctx context.Context, id string) (Account, error) {
	return s.FindByIdentifier(ctx, KindID, id)
}

func (s *memoryStore) Provision(_ context.Context, acct Account) (Account, error) {
	if err := acct.Validate(); err != nil {
		return Account{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[acct.ID]; exists {
		return Account{}, fmt.Errorf("%w: account %s exists", ErrDuplicateIdentity, acct.ID)
	}
	if err := s.checkUnique(acct); err != nil {
		return Account{}, err
	}
	stored := acct.clone()
	stored.Version = 1
	s.put(stored)
	return stored.clone(), nil
}

func (s *memoryStore) Save(ctx context.Context, acct Account) (Account, error) {
	saved, err := s.SaveAll(ctx, acct)
	if err != nil {
		return Account{}, err
	}
	return saved[0], nil
}

func (s *memoryStore) SaveAll(_ context.Context, accts ...Account) ([]Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(accts))
	for _, acct := range accts {
		if _, dup := seen[acct.ID]; dup {
			return nil, fmt.Errorf("account %s appears twice in one save", acct.ID)
		}
		seen[acct.ID] = struct{}{}
		if err := s.checkSave(acct); err != nil {
			return nil, err
		}
	}

	out := make([]Account, 0, len(accts))
	for _, acct := range accts {
		stored := acct.clone()
		stored.Version = acct.Version + 1
		s.put(stored)
		out = append(out, stored.clone())
	}
	return out, nil
}

func (s *memoryStore) checkSave(acct Account) error {
	current, ok := s.byID[acct.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Version != acct.Version {
		return ErrVersionConflict
	}
	if current.Email != "" && current.Email != acct.Email {
		return ErrIdentityImmutable
	}
	if current.Mobile != "" && current.Mobile != acct.Mobile {
		return ErrIdentityImmutable
	}
	if err := acct.Validate(); err != nil {
		return err
	}
	return s.checkUnique(acct)
}

func (s *memoryStore) checkUnique(acct Account) error {
	if acct.Email != "" {
		if owner, ok := s.byEmail[acct.Email]; ok && owner != acct.ID {
			return fmt.Errorf("%w: email %s", ErrDuplicateIdentity, acct.Email)
		}
	}
	if acct.Mobile != "" {
		if owner, ok := s.byMobile[acct.Mobile]; ok && owner != acct.ID {
			return fmt.Errorf("%w: mobile %s", ErrDuplicateIdentity, acct.Mobile)
		}
	}
	return nil
}

func (s *memoryStore) put(acct Account) {
	s.byID[acct.ID] = acct
	if acct.Email != "" {
		s.byEmail[acct.Email] = acct.ID
	}
	if acct.Mobile != "" {
		s.byMobile[acct.Mobile] = acct.ID
	}
}
