package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/streakhub/streak-hub/internal/domain/participant"
	"github.com/streakhub/streak-hub/pkg/logger"
)

// Middleware wraps a handler.
type Middleware func(Handler) Handler

func chain(h Handler, middlewares []Middleware) Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// RecoveryMiddleware turns a handler panic into an ErrHandlerPanic error.
func RecoveryMiddleware(log *slog.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, event participant.Event) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("handler panic recovered",
						logger.EventKind(string(event.Kind())),
						slog.Any("panic", r),
						slog.String("stack", string(debug.Stack())),
					)
					err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
				}
			}()
			return next(ctx, event)
		}
	}
}

// LoggingMiddleware logs each handler run at debug level.
func LoggingMiddleware(log *slog.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, event participant.Event) error {
			start := time.Now()
			err := next(ctx, event)
			if err == nil {
				log.Debug("handler completed",
					logger.EventKind(string(event.Kind())),
					logger.ParticipantID(event.AggregateID()),
					logger.Latency(time.Since(start)),
				)
			}
			return err
		}
	}
}
