package identity

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"
)

// maxOTPAttempts bounds wrong guesses against one issued code.
const maxOTPAttempts = 5

// OTPStore keeps issued one-time codes until they expire or are used.
type OTPStore interface {
	Save(ctx context.Context, email, code string, ttl time.Duration) error
	// Consume checks code and deletes it on success. A missing, expired or
	// exhausted code fails with ErrInvalidOTP.
	Consume(ctx context.Context, email, code string) error
}

// RedisOTPStore stores codes under otp:<email> with a Redis TTL.
type RedisOTPStore struct {
	client *redis.Client
}

func NewRedisOTPStore(client *redis.Client) *RedisOTPStore {
	return &RedisOTPStore{client: client}
}

func otpKey(email string) string      { return "otp:" + email }
func attemptsKey(email string) string { return "otp:attempts:" + email }

func (s *RedisOTPStore) Save(ctx context.Context, email, code string, ttl time.Duration) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, otpKey(email), code, ttl)
		pipe.Del(ctx, attemptsKey(email))
		return nil
	})
	if err != nil {
		return fmt.Errorf("store otp: %w", err)
	}
	return nil
}

func (s *RedisOTPStore) Consume(ctx context.Context, email, code string) error {
	var stored *redis.StringCmd
	var ttl *redis.DurationCmd
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		stored = pipe.Get(ctx, otpKey(email))
		ttl = pipe.PTTL(ctx, otpKey(email))
		return nil
	})
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: expired or not requested", ErrInvalidOTP)
	}
	if err != nil {
		return fmt.Errorf("load otp: %w", err)
	}

	if subtle.ConstantTimeCompare([]byte(stored.Val()), []byte(code)) != 1 {
		return s.recordMiss(ctx, email, ttl.Val())
	}

	if err := s.client.Del(ctx, otpKey(email), attemptsKey(email)).Err(); err != nil {
		return fmt.Errorf("delete otp: %w", err)
	}
	return nil
}

// recordMiss counts a wrong guess. The counter expires with the code it
// guards, and the code is revoked once the counter reaches maxOTPAttempts.
func (s *RedisOTPStore) recordMiss(ctx context.Context, email string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultOTPTTL
	}
	var attempts *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		attempts = pipe.Incr(ctx, attemptsKey(email))
		pipe.ExpireNX(ctx, attemptsKey(email), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("count otp attempt: %w", err)
	}
	if attempts.Val() >= maxOTPAttempts {
		if err := s.client.Del(ctx, otpKey(email), attemptsKey(email)).Err(); err != nil {
			return fmt.Errorf("revoke otp: %w", err)
		}
	}
	return ErrInvalidOTP
}

// GenerateCode returns a uniformly random six digit code.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
