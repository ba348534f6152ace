package httpapi

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitDone(t *testing.T, ctx context.Context) {
	t.Helper()
	select {
	case <-ctx.Done():
	case <-time.After(500 * time.Millisecond):
		t.Fatal("joined context did not cancel")
	}
}

func TestJoinContexts_EitherParentCancels(t *testing.T) {
	a, ac := context.WithCancel(context.Background())
	b, bc := context.WithCancel(context.Background())
	defer bc()
	j, cancel := joinContexts(a, b)
	defer cancel()
	ac()
	waitDone(t, j)

	a2, ac2 := context.WithCancel(context.Background())
	defer ac2()
	b2, bc2 := context.WithCancelCause(context.Background())
	j2, cancel2 := joinContexts(a2, b2)
	defer cancel2()
	cause := errors.New("client went away")
	bc2(cause)
	waitDone(t, j2)
	assert.ErrorIs(t, context.Cause(j2), cause)
}

func TestJoinContexts_CancelFuncReleases(t *testing.T) {
	j, cancel := joinContexts(context.Background(), context.Background())
	cancel()
	waitDone(t, j)
}

func TestDrainContext_EndsOnShutdown(t *testing.T) {
	base, stop := context.WithCancel(context.Background())
	SetBaseContext(base)
	t.Cleanup(func() { SetBaseContext(nil) })

	ctx, cancel := drainContext(httptest.NewRequest("POST", "/analyze", nil))
	defer cancel()
	require.NoError(t, ctx.Err())
	stop()
	waitDone(t, ctx)
}

func TestSetBaseContext_NilResetsToBackground(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	SetBaseContext(ctx)
	cancel()
	// nolint:staticcheck // SA1012: nil is the documented reset
	SetBaseContext(nil)
	assert.NoError(t, serverBaseCtx().Err())
}
