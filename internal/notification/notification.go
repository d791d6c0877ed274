package notification

import (
	"context"
	"log/slog"
	"time"
)

const (
	// KindP2PTransfer indicates money received from another wallet.
	KindP2PTransfer = "p2p_transfer"
	// KindOTP carries a one-time password to the account holder.
	KindOTP = "otp"
)

// Message describes a notification payload.
type Message struct {
	Kind        string    `json:"kind"`
	Destination string    `json:"destination"`
	Body        string    `json:"body"`
	Reference   string    `json:"reference,omitempty"`
	SentAt      time.Time `json:"sentAt"`
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the structured logger. It stands in
// for a real delivery channel in development.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification",
		"kind", message.Kind,
		"destination", message.Destination,
		"reference", message.Reference,
		"body", message.Body,
	)
	return nil
}
