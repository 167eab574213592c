package depcache

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-manager/types"
)

func TestTracker_InactiveContextIsNoop(t *testing.T) {
	ctx := context.Background()
	require.False(t, TrackingActive(ctx))

	// Must not panic without a scope.
	Track(ctx, "orders", types.OperationFilter, `{"status": "open"}`)
}

func TestTracker_CollectsAndDeduplicates(t *testing.T) {
	ctx, scope := BeginTracking(context.Background())
	require.True(t, TrackingActive(ctx))

	Track(ctx, "orders", types.OperationFilter, `{"status": "open"}`)
	Track(ctx, "orders", types.OperationFilter, `{"status": "open"}`)
	Track(ctx, "users", types.OperationIdentification, `{"email": "a@b.c"}`)

	deps := scope.End()
	require.Len(t, deps, 2)
	require.Equal(t, "orders", deps[0].Manager)
	require.Equal(t, "users", deps[1].Manager)
}

func TestTracker_NestedScopesBothObserve(t *testing.T) {
	outerCtx, outer := BeginTracking(context.Background())
	innerCtx, inner := BeginTracking(outerCtx)

	Track(innerCtx, "orders", types.OperationFilter, `{"status": "open"}`)

	require.Len(t, inner.End(), 1)
	require.Len(t, outer.End(), 1, "enclosing scope observes inner dependencies")
}

func TestTracker_OuterScopeDoesNotLeakIntoSibling(t *testing.T) {
	root := context.Background()
	ctxA, scopeA := BeginTracking(root)
	ctxB, scopeB := BeginTracking(root)

	Track(ctxA, "orders", types.OperationFilter, `{"a": 1}`)
	Track(ctxB, "orders", types.OperationFilter, `{"b": 2}`)

	depsA := scopeA.End()
	depsB := scopeB.End()
	require.Len(t, depsA, 1)
	require.Len(t, depsB, 1)
	require.NotEqual(t, depsA[0].Descriptor, depsB[0].Descriptor)
}

func TestTracker_TrackOutsideScopeContext(t *testing.T) {
	ctx, scope := BeginTracking(context.Background())

	// Tracking against the parent context reaches no frame.
	Track(context.Background(), "orders", types.OperationFilter, `{"a": 1}`)
	Track(ctx, "orders", types.OperationFilter, `{"b": 2}`)

	deps := scope.End()
	require.Len(t, deps, 1)
	require.Equal(t, `{"b": 2}`, deps[0].Descriptor)
}

func TestTracker_ConcurrentTracking(t *testing.T) {
	ctx, scope := BeginTracking(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			Track(ctx, "orders", types.OperationFilter, `{"status": "open"}`)
		}()
	}
	wg.Wait()

	require.Len(t, scope.End(), 1)
}

func TestTracker_EndIsStable(t *testing.T) {
	ctx, scope := BeginTracking(context.Background())

	Track(ctx, "b", types.OperationFilter, `{"x": 1}`)
	Track(ctx, "a", types.OperationExclude, `{"y": 2}`)
	Track(ctx, "a", types.OperationFilter, `{"z": 3}`)

	deps := scope.End()
	require.Len(t, deps, 3)
	require.Equal(t, "a", deps[0].Manager)
	require.Equal(t, types.OperationExclude, deps[0].Operation)
	require.Equal(t, "a", deps[1].Manager)
	require.Equal(t, types.OperationFilter, deps[1].Operation)
	require.Equal(t, "b", deps[2].Manager)
}
