package auth

import (
	"context"
	"time"

	"github.com/congo-pay/digiwallet/internal/account"
)

// Authenticator checks credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (account.Account, error)
}

type Service struct {
	accounts Authenticator
	issuer   *Issuer
}

func NewService(accounts Authenticator, issuer *Issuer) *Service {
	return &Service{accounts: accounts, issuer: issuer}
}

// Session is the result of a successful login.
type Session struct {
	AccountID string
	Token     string
	ExpiresAt time.Time
}

// Login validates credentials and issues an access token.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	acct, err := s.accounts.Authenticate(ctx, email, password)
	if err != nil {
		return Session{}, err
	}
	token, exp, err := s.issuer.Issue(acct.ID, acct.Email)
	if err != nil {
		return Session{}, err
	}
	return Session{AccountID: acct.ID, Token: token, ExpiresAt: exp}, nil
}
