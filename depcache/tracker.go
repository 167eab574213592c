package depcache

import (
	"context"
	"sort"
	"sync"

	"github.com/saiset-co/sai-manager/types"
)

type trackerContextKey struct{}

type trackerFrame struct {
	mu   sync.Mutex
	deps map[types.TrackedDependency]struct{}
}

func newTrackerFrame() *trackerFrame {
	return &trackerFrame{deps: make(map[types.TrackedDependency]struct{})}
}

func (f *trackerFrame) add(dep types.TrackedDependency) {
	f.mu.Lock()
	f.deps[dep] = struct{}{}
	f.mu.Unlock()
}

// TrackerScope is one accumulation frame of the dependency tracker. Scopes
// nest: a dependency tracked inside an inner scope is also observed by every
// enclosing scope, because a cached computation may call into another cached
// computation.
type TrackerScope struct {
	frame *trackerFrame
}

// BeginTracking pushes a fresh frame onto the context-local tracker stack
// and returns the derived context plus the scope to collect from. Stacks
// live in the context, never in package state, so concurrent tasks are
// fully isolated.
func BeginTracking(ctx context.Context) (context.Context, *TrackerScope) {
	frame := newTrackerFrame()

	var stack []*trackerFrame
	if existing, ok := ctx.Value(trackerContextKey{}).([]*trackerFrame); ok {
		stack = make([]*trackerFrame, len(existing), len(existing)+1)
		copy(stack, existing)
	}
	stack = append(stack, frame)

	return context.WithValue(ctx, trackerContextKey{}, stack), &TrackerScope{frame: frame}
}

// Track records a consulted lookup into every active frame on the stack.
// A context without an active scope is a no-op.
func Track(ctx context.Context, manager string, operation types.Operation, descriptor string) {
	stack, ok := ctx.Value(trackerContextKey{}).([]*trackerFrame)
	if !ok {
		return
	}

	dep := types.TrackedDependency{
		Manager:    manager,
		Operation:  operation,
		Descriptor: descriptor,
	}

	for _, frame := range stack {
		frame.add(dep)
	}
}

// TrackingActive reports whether the context carries at least one scope.
func TrackingActive(ctx context.Context) bool {
	stack, ok := ctx.Value(trackerContextKey{}).([]*trackerFrame)
	return ok && len(stack) > 0
}

// End drains the scope's frame into a stable, deduplicated slice.
func (s *TrackerScope) End() []types.TrackedDependency {
	s.frame.mu.Lock()
	deps := make([]types.TrackedDependency, 0, len(s.frame.deps))
	for dep := range s.frame.deps {
		deps = append(deps, dep)
	}
	s.frame.mu.Unlock()

	sort.Slice(deps, func(i, j int) bool {
		if deps[i].Manager != deps[j].Manager {
			return deps[i].Manager < deps[j].Manager
		}
		if deps[i].Operation != deps[j].Operation {
			return deps[i].Operation < deps[j].Operation
		}
		return deps[i].Descriptor < deps[j].Descriptor
	})

	return deps
}
