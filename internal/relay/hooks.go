package relay

import (
	"context"

	"github.com/julienstroheker/wsockify/internal/logging"
)

// ErrorHook observes errors without altering control flow.
// Implementations are called from whichever goroutine detected the error
// and must be safe for concurrent use.
type ErrorHook interface {
	OnError(ctx context.Context, kind ErrorKind, err error)
}

// ErrorHookFunc adapts a function to ErrorHook
type ErrorHookFunc func(ctx context.Context, kind ErrorKind, err error)

// OnError calls f(ctx, kind, err)
func (f ErrorHookFunc) OnError(ctx context.Context, kind ErrorKind, err error) {
	f(ctx, kind, err)
}

// LogHook returns a hook that writes each error to logger
func LogHook(logger *logging.Logger) ErrorHook {
	return ErrorHookFunc(func(_ context.Context, kind ErrorKind, err error) {
		if logger == nil {
			return
		}
		fields := []logging.Field{logging.String("kind", kind.String()), logging.Error(err)}
		if se, ok := err.(*SessionError); ok && se.SessionID != "" {
			fields = append(fields, logging.String("session_id", se.SessionID))
		}
		logger.Error("Relay error", fields...)
	})
}

// MultiHook fans an error out to every non-nil hook in order
func MultiHook(hooks ...ErrorHook) ErrorHook {
	var list []ErrorHook
	for _, h := range hooks {
		if h != nil {
			list = append(list, h)
		}
	}
	return ErrorHookFunc(func(ctx context.Context, kind ErrorKind, err error) {
		for _, h := range list {
			h.OnError(ctx, kind, err)
		}
	})
}

func report(ctx context.Context, hook ErrorHook, kind ErrorKind, err error) {
	if hook != nil {
		hook.OnError(ctx, kind, err)
	}
}
