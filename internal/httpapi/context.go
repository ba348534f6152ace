package httpapi

import (
	"context"
	"net/http"
	"sync/atomic"
)

type ctxBox struct{ ctx context.Context }

// baseCtx ends on server shutdown. Streaming handlers stop draining with it.
var baseCtx atomic.Value

// SetBaseContext sets the process-level context handlers drain under. nil resets
// it to Background.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	baseCtx.Store(ctxBox{ctx})
}

func serverBaseCtx() context.Context {
	if b, ok := baseCtx.Load().(ctxBox); ok {
		return b.ctx
	}
	return context.Background()
}

// drainContext bounds an accepted request's stream by the client connection
// and by server shutdown.
func drainContext(r *http.Request) (context.Context, context.CancelFunc) {
	return joinContexts(serverBaseCtx(), r.Context())
}

// joinContexts returns a context canceled when either a or b is done. The
// cancel func releases the watch on b and must be called.
func joinContexts(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(a)
	stop := context.AfterFunc(b, func() { cancel(context.Cause(b)) })
	return ctx, func() {
		stop()
		cancel(context.Canceled)
	}
}
