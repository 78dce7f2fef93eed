// Package storage persists workflow and retry state. The file backend
// is the default; memory serves tests and embedding, and Redis serves
// setups where state lives off the working tree.
package storage

import (
	"context"
	"errors"

	"github.com/hanyki111/workflow-tool/types"
)

// ErrStateCorrupt indicates the persisted workflow state is unreadable
// or structurally invalid. It is never silently repaired; recovery goes
// through an explicit stage override.
var ErrStateCorrupt = errors.New("persisted state is corrupt")

// Store is the persistence interface for workflow and retry state.
// Absent state loads as the zero value; every save replaces the whole
// record atomically.
type Store interface {
	LoadState(ctx context.Context) (types.WorkflowState, error)
	SaveState(ctx context.Context, st types.WorkflowState) error

	LoadRetry(ctx context.Context) (types.RetryState, error)
	SaveRetry(ctx context.Context, rs types.RetryState) error
	ClearRetry(ctx context.Context) error
}

// withContext is a standalone generic helper function.
func withContext[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	default:
		return fn()
	}
}

// withContextError handles context cancellation for operations that only return an error.
func withContextError(ctx context.Context, fn func() error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fn()
	}
}
