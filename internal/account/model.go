package account

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/digiwallet/internal/money"
)

// IdentifierKind names the field used to look an account up.
type IdentifierKind string

const (
	KindID     IdentifierKind = "id"
	KindEmail  IdentifierKind = "email"
	KindMobile IdentifierKind = "mobile"
)

// TransactionKind is the direction of a log entry relative to its owner.
type TransactionKind string

const (
	Credit TransactionKind = "credit"
	Debit  TransactionKind = "debit"
)

var (
	emailPattern  = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	mobilePattern = regexp.MustCompile(`^[0-9]{10}$`)
)

// Ref addresses an account by one of its identity keys.
type Ref struct {
	Kind  IdentifierKind
	Value string
}

// ByID references an account by its internal identifier.
func ByID(id string) Ref { return Ref{Kind: KindID, Value: id} }

// ByEmail references an account by email address.
func ByEmail(email string) Ref { return Ref{Kind: KindEmail, Value: email} }

// ByMobile references an account by mobile number.
func ByMobile(mobile string) Ref { return Ref{Kind: KindMobile, Value: mobile} }

// Normalized trims the value and lower-cases emails so that lookups and
// identity comparisons are case-insensitive.
func (r Ref) Normalized() Ref {
	v := strings.TrimSpace(r.Value)
	if r.Kind == KindEmail {
		v = NormalizeEmail(v)
	}
	return Ref{Kind: r.Kind, Value: v}
}

func (r Ref) String() string {
	return string(r.Kind) + ":" + r.Value
}

// NormalizeEmail returns the canonical stored form of an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail reports whether email looks like an address.
func ValidEmail(email string) bool { return emailPattern.MatchString(email) }

// ValidMobile reports whether mobile is a 10 digit number.
func ValidMobile(mobile string) bool { return mobilePattern.MatchString(mobile) }

// Transaction is an immutable entry in an account's log.
type Transaction struct {
	ID          string          `json:"id"`
	Seq         int64           `json:"seq"`
	Kind        TransactionKind `json:"type"`
	Amount      money.Amount    `json:"amount"`
	From        string          `json:"from,omitempty"`
	To          string          `json:"to,omitempty"`
	Description string          `json:"description"`
	TransferID  string          `json:"transferId,omitempty"`
	CreatedAt   time.Time       `json:"date"`
}

// Account is a wallet holder together with its balance and transaction log.
type Account struct {
	ID           string
	Email        string
	Mobile       string
	Name         string
	PasswordHash []byte
	Verified     bool
	Balance      money.Amount
	Version      int64
	CreatedAt    time.Time
	Transactions []Transaction

	// entries appended since the account was loaded
	pending []Transaction
}

// New builds an unverified, zero-balance account for the given identities.
func New(email, mobile string, now time.Time) Account {
	return Account{
		ID:        uuid.NewString(),
		Email:     NormalizeEmail(email),
		Mobile:    strings.TrimSpace(mobile),
		CreatedAt: now.UTC(),
	}
}

// Identifier returns the primary external identity: email when present,
// mobile otherwise.
func (a Account) Identifier() string {
	if a.Email != "" {
		return a.Email
	}
	return a.Mobile
}

// Registered reports whether credentials have been set.
func (a Account) Registered() bool {
	return len(a.PasswordHash) > 0
}

// Validate checks identity and balance invariants.
func (a Account) Validate() error {
	if a.Email == "" && a.Mobile == "" {
		return fmt.Errorf("%w: email or mobile is required", ErrInvalidIdentity)
	}
	if a.Email != "" && !ValidEmail(a.Email) {
		return fmt.Errorf("%w: %s is not a valid email", ErrInvalidIdentity, a.Email)
	}
	if a.Mobile != "" && !ValidMobile(a.Mobile) {
		return fmt.Errorf("%w: %s is not a valid mobile", ErrInvalidIdentity, a.Mobile)
	}
	if a.Balance < 0 {
		return fmt.Errorf("negative balance %s", a.Balance)
	}
	return nil
}

// Entry describes a log entry to append.
type Entry struct {
	Kind        TransactionKind
	Amount      money.Amount
	From        string
	To          string
	Description string
	TransferID  string
}

// Append adds an entry to the log. The timestamp never goes backwards
// relative to the previous entry. The entry is persisted by the next Save.
func (a *Account) Append(e Entry, now time.Time) Transaction {
	created := now.UTC()
	if n := len(a.Transactions); n > 0 && created.Before(a.Transactions[n-1].CreatedAt) {
		created = a.Transactions[n-1].CreatedAt
	}
	tx := Transaction{
		ID:          uuid.NewString(),
		Seq:         int64(len(a.Transactions)) + 1,
		Kind:        e.Kind,
		Amount:      e.Amount,
		From:        e.From,
		To:          e.To,
		Description: e.Description,
		TransferID:  e.TransferID,
		CreatedAt:   created,
	}
	a.Transactions = append(a.Transactions, tx)
	a.pending = append(a.pending, tx)
	return tx
}

// Pending returns entries appended since the account was loaded.
func (a Account) Pending() []Transaction {
	out := make([]Transaction, len(a.pending))
	copy(out, a.pending)
	return out
}

func (a Account) clone() Account {
	c := a
	c.PasswordHash = append([]byte(nil), a.PasswordHash...)
	c.Transactions = append([]Transaction(nil), a.Transactions...)
	c.pending = nil
	return c
}
