package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/congo-pay/digiwallet/internal/account"
	"github.com/congo-pay/digiwallet/internal/ledger"
	"github.com/congo-pay/digiwallet/internal/notification"
)

const DefaultOTPTTL = 5 * time.Minute

var (
	ErrInvalidOTP         = errors.New("invalid or expired OTP")
	ErrNotVerified        = errors.New("OTP not verified")
	ErrAlreadyRegistered  = errors.New("user already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrMissingFields      = errors.New("required field missing")
)

// Ledger is the subset of the ledger engine that manages account lifecycle.
type Ledger interface {
	Lookup(ctx context.Context, ref account.Ref) (account.Account, error)
	Provision(ctx context.Context, acct account.Account) (account.Account, error)
	UpdateProfile(ctx context.Context, ref account.Ref, apply func(*account.Account) error) (account.Account, error)
}

// Options tunes the identity service.
type Options struct {
	OTPTTL     time.Duration
	BcryptCost int
	Logger     *slog.Logger
	Now        func() time.Time
	NewCode    func() (string, error)
}

// Service manages onboarding: OTP issue and verification, registration and
// credential checks.
type Service struct {
	ledger   Ledger
	otps     OTPStore
	notifier notification.Notifier
	ttl      time.Duration
	cost     int
	logger   *slog.Logger
	now      func() time.Time
	newCode  func() (string, error)
}

// NewService creates a new identity service.
func NewService(l Ledger, otps OTPStore, notifier notification.Notifier, opts Options) *Service {
	s := &Service{
		ledger:   l,
		otps:     otps,
		notifier: notifier,
		ttl:      opts.OTPTTL,
		cost:     opts.BcryptCost,
		logger:   opts.Logger,
		now:      opts.Now,
		newCode:  opts.NewCode,
	}
	if s.ttl <= 0 {
		s.ttl = DefaultOTPTTL
	}
	if s.cost == 0 {
		s.cost = bcrypt.DefaultCost
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newCode == nil {
		s.newCode = GenerateCode
	}
	return s
}

// ProvisionUnverified returns the account owning email, creating an
// unverified zero-balance account when none exists.
func (s *Service) ProvisionUnverified(ctx context.Context, email string) (account.Account, error) {
	email = account.NormalizeEmail(email)
	if !account.ValidEmail(email) {
		return account.Account{}, fmt.Errorf("%w: %q is not a valid email", account.ErrInvalidIdentity, email)
	}
	acct, err := s.ledger.Lookup(ctx, account.ByEmail(email))
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, ledger.ErrAccountNotFound) {
		return account.Account{}, err
	}

	acct, err = s.ledger.Provision(ctx, account.New(email, "", s.now()))
	if errors.Is(err, account.ErrDuplicateIdentity) {
		// a concurrent request provisioned it first
		return s.ledger.Lookup(ctx, account.ByEmail(email))
	}
	return acct, err
}

// SendOTP issues a fresh code for email and delivers it through the notifier.
func (s *Service) SendOTP(ctx context.Context, email string) error {
	if strings.TrimSpace(email) == "" {
		return fmt.Errorf("%w: email", ErrMissingFields)
	}
	acct, err := s.ProvisionUnverified(ctx, email)
	if err != nil {
		return err
	}
	code, err := s.newCode()
	if err != nil {
		return err
	}
	if err := s.otps.Save(ctx, acct.Email, code, s.ttl); err != nil {
		return err
	}
	if s.notifier != nil {
		err := s.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindOTP,
			Destination: acct.Email,
			Body:        fmt.Sprintf("Your wallet verification code is %s. It expires in %s.", code, s.ttl),
			SentAt:      s.now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("deliver otp: %w", err)
		}
	}
	s.logger.Info("otp issued", "account_id", acct.ID)
	return nil
}

// VerifyOTP consumes the code and marks the account verified.
func (s *Service) VerifyOTP(ctx context.Context, email, code string) (account.Account, error) {
	email = account.NormalizeEmail(email)
	code = strings.TrimSpace(code)
	if email == "" || code == "" {
		return account.Account{}, fmt.Errorf("%w: email and otp", ErrMissingFields)
	}
	if _, err := s.ledger.Lookup(ctx, account.ByEmail(email)); err != nil {
		return account.Account{}, err
	}
	if err := s.otps.Consume(ctx, email, code); err != nil {
		return account.Account{}, err
	}
	return s.ledger.UpdateProfile(ctx, account.ByEmail(email), func(acct *account.Account) error {
		acct.Verified = true
		return nil
	})
}

// RegisterInput carries the registration form.
type RegisterInput struct {
	Name     string
	Email    string
	Mobile   string
	Password string
}

// Register sets the holder's name, mobile and password on a verified
// account. Registering twice fails with ErrAlreadyRegistered.
func (s *Service) Register(ctx context.Context, in RegisterInput) (account.Account, error) {
	name, email, mobile := strings.TrimSpace(in.Name), account.NormalizeEmail(in.Email), strings.TrimSpace(in.Mobile)
	if name == "" || email == "" || mobile == "" || in.Password == "" {
		return account.Account{}, fmt.Errorf("%w: name, email, mobile and password are required", ErrMissingFields)
	}
	if !account.ValidMobile(mobile) {
		return account.Account{}, fmt.Errorf("%w: %q is not a valid mobile", account.ErrInvalidIdentity, mobile)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return account.Account{}, err
	}

	acct, err := s.ledger.UpdateProfile(ctx, account.ByEmail(email), func(acct *account.Account) error {
		if !acct.Verified {
			return ErrNotVerified
		}
		if acct.Registered() {
			return ErrAlreadyRegistered
		}
		if acct.Mobile != "" && acct.Mobile != mobile {
			return account.ErrIdentityImmutable
		}
		acct.Name = name
		acct.Mobile = mobile
		acct.PasswordHash = hash
		return nil
	})
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return account.Account{}, fmt.Errorf("%w: %s", ErrNotVerified, email)
	}
	if err != nil {
		return account.Account{}, err
	}
	s.logger.Info("account registered", "account_id", acct.ID)
	return acct, nil
}

// Authenticate checks an email and password pair. Unknown emails and wrong
// passwords fail the same way.
func (s *Service) Authenticate(ctx context.Context, email, password string) (account.Account, error) {
	acct, err := s.ledger.Lookup(ctx, account.ByEmail(email))
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return account.Account{}, ErrInvalidCredentials
	}
	if err != nil {
		return account.Account{}, err
	}
	if !acct.Registered() {
		return account.Account{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(acct.PasswordHash, []byte(password)); err != nil {
		return account.Account{}, ErrInvalidCredentials
	}
	return acct, nil
}
