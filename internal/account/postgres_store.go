package account

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/digiwallet/internal/money"
)

const accountColumns = `id, email, mobile, name, password_hash, verified, balance, version, created_at`

// PostgresStore persists accounts and their transaction logs in PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed account store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// FindByIdentifier loads the account owning the given email or mobile.
func (s *PostgresStore) FindByIdentifier(ctx context.Context, kind IdentifierKind, value string) (Account, error) {
	var column string
	switch kind {
	case KindID:
		return s.FindByID(ctx, value)
	case KindEmail:
		column, value = "email", NormalizeEmail(value)
	case KindMobile:
		column = "mobile"
	default:
		return Account{}, fmt.Errorf("%w: unknown identifier kind %q", ErrInvalidIdentity, kind)
	}
	return s.read(ctx, `SELECT `+accountColumns+` FROM accounts WHERE `+column+` = $1`, value)
}

// FindByID loads an account by its internal identifier.
func (s *PostgresStore) FindByID(ctx context.Context, id string) (Account, error) {
	accountID, err := uuid.Parse(id)
	if err != nil {
		return Account{}, ErrNotFound
	}
	return s.read(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, accountID)
}

// Provision inserts a new account row.
func (s *PostgresStore) Provision(ctx context.Context, acct Account) (Account, error) {
	if err := acct.Validate(); err != nil {
		return Account{}, err
	}
	accountID, err := uuid.Parse(acct.ID)
	if err != nil {
		return Account{}, fmt.Errorf("%w: bad id %q", ErrInvalidIdentity, acct.ID)
	}
	_, err = s.db.Exec(ctx, `INSERT INTO accounts (`+accountColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, 1, $8)`,
		accountID, nullable(acct.Email), nullable(acct.Mobile), acct.Name, acct.PasswordHash, acct.Verified, int64(acct.Balance), acct.CreatedAt.UTC())
	if err != nil {
		return Account{}, classify(err)
	}
	stored := acct.clone()
	stored.Version = 1
	return stored, nil
}

// Save persists a single account under the version guard.
func (s *PostgresStore) Save(ctx context.Context, acct Account) (Account, error) {
	saved, err := s.SaveAll(ctx, acct)
	if err != nil {
		return Account{}, err
	}
	return saved[0], nil
}

// SaveAll persists every account in one database transaction. A version
// mismatch on any row rolls the whole unit back. Rows are written in account
// id order so concurrent transactions lock them in the same order; results
// follow the argument order.
func (s *PostgresStore) SaveAll(ctx context.Context, accts ...Account) ([]Account, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, classify(err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	out := make([]Account, len(accts))
	for _, i := range lockOrder(accts) {
		saved, err := saveInTx(ctx, tx, accts[i])
		if err != nil {
			return nil, err
		}
		out[i] = saved
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

func saveInTx(ctx context.Context, tx pgx.Tx, acct Account) (Account, error) {
	if err := acct.Validate(); err != nil {
		return Account{}, err
	}
	accountID, err := uuid.Parse(acct.ID)
	if err != nil {
		return Account{}, ErrNotFound
	}

	const update = `
        UPDATE accounts
        SET email = COALESCE(email, $2),
            mobile = COALESCE(mobile, $3),
            name = $4,
            password_hash = $5,
            verified = $6,
            balance = $7,
            version = version + 1
        WHERE id = $1 AND version = $8
        RETURNING COALESCE(email, ''), COALESCE(mobile, ''), version`
	var storedEmail, storedMobile string
	var version int64
	err = tx.QueryRow(ctx, update,
		accountID, nullable(acct.Email), nullable(acct.Mobile), acct.Name, acct.PasswordHash, acct.Verified, int64(acct.Balance), acct.Version,
	).Scan(&storedEmail, &storedMobile, &version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, missingOrStale(ctx, tx, accountID)
		}
		return Account{}, classify(err)
	}
	if storedEmail != acct.Email || storedMobile != acct.Mobile {
		return Account{}, ErrIdentityImmutable
	}

	const insert = `INSERT INTO account_transactions
        (id, account_id, seq, kind, amount, from_ref, to_ref, description, transfer_id, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	for _, entry := range acct.pending {
		entryID, err := uuid.Parse(entry.ID)
		if err != nil {
			return Account{}, fmt.Errorf("bad transaction id %q: %w", entry.ID, err)
		}
		var transferID *uuid.UUID
		if entry.TransferID != "" {
			parsed, err := uuid.Parse(entry.TransferID)
			if err != nil {
				return Account{}, fmt.Errorf("bad transfer id %q: %w", entry.TransferID, err)
			}
			transferID = &parsed
		}
		if _, err := tx.Exec(ctx, insert,
			entryID, accountID, entry.Seq, string(entry.Kind), int64(entry.Amount),
			entry.From, entry.To, entry.Description, transferID, entry.CreatedAt.UTC(),
		); err != nil {
			if isUniqueViolation(err) {
				// another writer already used this sequence number
				return Account{}, ErrVersionConflict
			}
			return Account{}, classify(err)
		}
	}

	saved := acct.clone()
	saved.Version = version
	return saved, nil
}

// lockOrder returns the indexes of accts sorted by account id.
func lockOrder(accts []Account) []int {
	idx := make([]int, len(accts))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return accts[idx[a]].ID < accts[idx[b]].ID
	})
	return idx
}

func missingOrStale(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, id).Scan(&exists); err != nil {
		return classify(err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrVersionConflict
}

// read loads the account row and its log from one snapshot, so the balance
// always matches the entries returned with it.
func (s *PostgresStore) read(ctx context.Context, query string, arg any) (Account, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return Account{}, classify(err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	acct, err := load(ctx, tx, tx.QueryRow(ctx, query, arg))
	if err != nil {
		return Account{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Account{}, classify(err)
	}
	return acct, nil
}

func load(ctx context.Context, tx pgx.Tx, row pgx.Row) (Account, error) {
	var (
		acct      Account
		id        uuid.UUID
		email     *string
		mobile    *string
		balance   int64
		createdAt time.Time
	)
	if err := row.Scan(&id, &email, &mobile, &acct.Name, &acct.PasswordHash, &acct.Verified, &balance, &acct.Version, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, classify(err)
	}
	acct.ID = id.String()
	if email != nil {
		acct.Email = *email
	}
	if mobile != nil {
		acct.Mobile = *mobile
	}
	acct.Balance = money.Amount(balance)
	acct.CreatedAt = createdAt.UTC()

	rows, err := tx.Query(ctx, `SELECT id, seq, kind, amount, from_ref, to_ref, description, transfer_id, created_at
        FROM account_transactions WHERE account_id = $1 ORDER BY seq`, id)
	if err != nil {
		return Account{}, classify(err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			entry      Transaction
			entryID    uuid.UUID
			kind       string
			amount     int64
			transferID *uuid.UUID
		)
		if err := rows.Scan(&entryID, &entry.Seq, &kind, &amount, &entry.From, &entry.To, &entry.Description, &transferID, &entry.CreatedAt); err != nil {
			return Account{}, classify(err)
		}
		entry.ID = entryID.String()
		entry.Kind = TransactionKind(kind)
		entry.Amount = money.Amount(amount)
		entry.CreatedAt = entry.CreatedAt.UTC()
		if transferID != nil {
			entry.TransferID = transferID.String()
		}
		acct.Transactions = append(acct.Transactions, entry)
	}
	if err := rows.Err(); err != nil {
		return Account{}, classify(err)
	}
	return acct, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Postgres aborts one side of a lock cycle or a serialization race. Both
// are safe to retry from a fresh read.
func isRetryableAbort(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40P01" || pgErr.Code == "40001"
	}
	return false
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// classify maps driver errors onto the store's sentinel errors.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %v", ErrDuplicateIdentity, err)
	}
	if isRetryableAbort(err) {
		return fmt.Errorf("%w: %v", ErrVersionConflict, err)
	}
	var connectErr *pgconn.ConnectError
	if pgconn.Timeout(err) || errors.As(err, &connectErr) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
