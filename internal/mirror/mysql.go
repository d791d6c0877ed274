package mirror

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

// MySQLWriter projects accounts into the legacy MySQL users table.
type MySQLWriter struct {
	db  *sql.DB
	now func() time.Time
}

func NewMySQLWriter(db *sql.DB) *MySQLWriter {
	return &MySQLWriter{db: db, now: time.Now}
}

// Assignments run left to right, so version is written last and every IF
// compares against the stored version.
const upsertProjection = `
INSERT INTO users (account_id, identifier, email, mobile, wallet_balance, is_verified, version, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
    identifier     = IF(VALUES(version) >= version, VALUES(identifier), identifier),
    email          = IF(VALUES(version) >= version, VALUES(email), email),
    mobile         = IF(VALUES(version) >= version, VALUES(mobile), mobile),
    wallet_balance = IF(VALUES(version) >= version, VALUES(wallet_balance), wallet_balance),
    is_verified    = IF(VALUES(version) >= version, VALUES(is_verified), is_verified),
    updated_at     = IF(VALUES(version) >= version, VALUES(updated_at), updated_at),
    version        = GREATEST(version, VALUES(version))`

func (w *MySQLWriter) Upsert(ctx context.Context, p Projection) error {
	if p.AccountID == "" || p.Identifier == "" {
		return fmt.Errorf("%w: missing account id or identifier", ErrInvalidProjection)
	}
	_, err := w.db.ExecContext(ctx, upsertProjection,
		p.AccountID, p.Identifier, nullString(p.Email), nullString(p.Mobile),
		int64(p.Balance), p.Verified, p.Version, w.now().UTC(),
	)
	if err != nil {
		return classify(err)
	}
	return nil
}

// Version returns the stored version for an account, or 0 if absent.
func (w *MySQLWriter) Version(ctx context.Context, accountID string) (int64, error) {
	var version int64
	err := w.db.QueryRowContext(ctx, `SELECT version FROM users WHERE account_id = ?`, accountID).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return version, err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// MySQL server errors that retrying cannot fix.
var permanentCodes = map[uint16]struct{}{
	1062: {}, // duplicate entry
	1264: {}, // out of range value
	1366: {}, // incorrect value
	1406: {}, // data too long
}

func classify(err error) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		if _, ok := permanentCodes[myErr.Number]; ok {
			return fmt.Errorf("%w: %v", ErrInvalidProjection, err)
		}
	}
	return err
}
