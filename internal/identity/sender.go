package identity

import (
	"context"
	"log/slog"

	"github.com/ledgergate/ledgergate/internal/observability/logger"
)

// Sender delivers a one-time passcode out of band. Email and SMS delivery
// are deployment concerns; the engine only needs the contract.
type Sender interface {
	SendCode(ctx context.Context, channel Channel, target, code string) error
}

// LogSender is a development sender that logs deliveries instead of
// sending them. The code itself is only emitted at debug level.
type LogSender struct{}

func (LogSender) SendCode(ctx context.Context, channel Channel, target, code string) error {
	slog.InfoContext(ctx, "otp delivery",
		logger.Channel(string(channel)),
		logger.Target(target),
	)
	slog.DebugContext(ctx, "otp code (dev only)", logger.String("code", code))
	return nil
}
