package messaging

import (
	"context"
	"log/slog"
)

// LogSender writes outbound messages to the log instead of delivering them.
// It backs local runs where no transport credentials are configured.
type LogSender struct {
	Logger *slog.Logger
}

// Send implements Sender.
func (s LogSender) Send(ctx context.Context, handle, text string) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "outbound message", "component", "messaging", "transport", "log", "handle", handle, "text", text)
	return nil
}
