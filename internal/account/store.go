package account

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no account matches the lookup.
	ErrNotFound = errors.New("account not found")

	// ErrVersionConflict indicates the stored account changed since it was
	// loaded. Nothing was persisted; reload and retry.
	ErrVersionConflict = errors.New("account version conflict")

	// ErrDuplicateIdentity is returned when an email or mobile is already
	// owned by another account.
	ErrDuplicateIdentity = errors.New("identity already in use")

	// ErrInvalidIdentity covers malformed or missing identity fields.
	ErrInvalidIdentity = errors.New("invalid identity")

	// ErrIdentityImmutable is returned when a save tries to change an email
	// or mobile that is already set.
	ErrIdentityImmutable = errors.New("identity cannot be changed once set")

	// ErrUnavailable wraps timeouts and connectivity failures of the backend.
	ErrUnavailable = errors.New("account store unavailable")
)

// Store persists accounts. Save is the durability boundary: once it returns
// nil the balance and appended entries are visible to every later read.
type Store interface {
	FindByIdentifier(ctx context.Context, kind IdentifierKind, value string) (Account, error)
	FindByID(ctx context.Context, id string) (Account, error)
	// Provision inserts a new account. It fails with ErrDuplicateIdentity if
	// the email or mobile is taken.
	Provision(ctx context.Context, acct Account) (Account, error)
	// Save persists acct if the stored version still equals acct.Version and
	// returns the committed account with its version advanced.
	Save(ctx context.Context, acct Account) (Account, error)
}

// BatchSaver is implemented by stores that can commit several accounts in
// one atomic unit. Either every account is saved or none is.
type BatchSaver interface {
	SaveAll(ctx context.Context, accts ...Account) ([]Account, error)
}

// Find resolves ref against s.
func Find(ctx context.Context, s Store, ref Ref) (Account, error) {
	ref = ref.Normalized()
	if ref.Value == "" {
		return Account{}, fmt.Errorf("%w: empty %s", ErrNotFound, ref.Kind)
	}
	if ref.Kind == KindID {
		return s.FindByID(ctx, ref.Value)
	}
	return s.FindByIdentifier(ctx, ref.Kind, ref.Value)
}
