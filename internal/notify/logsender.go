package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/homewatch/homewatch/internal/domain"
)

// LogSender logs deliveries instead of calling a provider; the default
// until a real push/email/SMS integration is configured.
type LogSender struct {
	kind   domain.ChannelKind
	logger *zap.Logger
}

// Compile-time check: LogSender implements Sender.
var _ Sender = (*LogSender)(nil)

// NewLogSender creates a sender for one channel kind.
func NewLogSender(kind domain.ChannelKind, logger *zap.Logger) *LogSender {
	return &LogSender{kind: kind, logger: logger}
}

// Send logs the notification and reports success.
func (s *LogSender) Send(_ context.Context, n domain.PendingNotification) error {
	s.logger.Info("notification delivered",
		zap.String("channel", string(s.kind)),
		zap.String("notification_id", n.ID),
		zap.String("user_id", n.UserID),
		zap.String("category", string(n.Category)),
		zap.String("priority", string(n.Priority)),
		zap.String("title", n.Title))
	return nil
}
