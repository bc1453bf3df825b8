package http

import (
	"context"
	"log/slog"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

// handlerLogger scopes a logger to one handler operation. The request logger
// installed by RequestLogger wins over the handler's own logger; when only the
// latter is available the request id is attached here instead.
func handlerLogger(ctx context.Context, fallback *slog.Logger, component, operation string, attrs ...any) *slog.Logger {
	logger := LoggerFromContext(ctx)
	if logger == nil {
		logger = defaultLogger(fallback)
		if id := RequestIDFromContext(ctx); id != "" {
			logger = logger.With("request_id", id)
		}
	}

	logger = logger.With("handler", component)
	if operation != "" {
		logger = logger.With("operation", operation)
	}
	if len(attrs) == 0 {
		return logger
	}
	return logger.With(attrs...)
}
