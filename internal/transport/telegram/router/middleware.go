package router

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	logx "rankbot/pkg/logx"
)

type HandlerFunc func(ctx context.Context, req *Request) error

// Middleware wraps a handler. Chain applies them outermost first.
type Middleware func(next HandlerFunc) HandlerFunc

// slowRequest promotes successful request logs from DEBUG to INFO.
const slowRequest = time.Second

func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := range m {
		h = m[len(m)-1-i](h)
	}
	return h
}

// requestLogger prefers the per-request logger, which carries the request id.
func requestLogger(req *Request, fallback logx.Logger) logx.Logger {
	if req == nil || req.Logger.IsZero() {
		return fallback
	}
	return req.Logger
}

// MWTimeout bounds the handler's context. d <= 0 leaves it unbounded.
func MWTimeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		if d <= 0 {
			return next
		}
		return func(ctx context.Context, req *Request) error {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(ctx, req)
		}
	}
}

// MWPanicRecover turns a handler panic into an error.
func MWPanicRecover(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				requestLogger(req, log).Error("command panicked",
					logx.Any("panic", r),
					logx.String("stack", string(debug.Stack())),
				)
				err = fmt.Errorf("panic: %v", r)
			}()
			return next(ctx, req)
		}
	}
}

func MWRequestLog(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			err := next(ctx, req)
			took := time.Since(start)

			l := requestLogger(req, log).With(
				logx.String("kind", string(req.Update.Kind)),
				logx.Int("thread_id", req.Chat.ThreadID),
				logx.Int("args", len(req.Args)),
				logx.Duration("dur", took),
			)
			switch {
			case err != nil:
				l.Warn("command failed", logx.Err(err))
			case took >= slowRequest:
				l.Info("command ok")
			default:
				l.Debug("command ok")
			}
			return err
		}
	}
}
