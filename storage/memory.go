package storage

import (
	"context"
	"sync"

	"github.com/hanyki111/workflow-tool/types"
)

// MemoryStore is an in-memory Store used by tests and library
// embedders. State does not survive the process.
type MemoryStore struct {
	state types.WorkflowState
	retry types.RetryState
	mu    sync.RWMutex
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{retry: types.RetryState{Items: map[string]types.RetryRecord{}}}
}

// LoadState returns a copy of the stored workflow state. The checklist
// is copied so caller mutations never reach the store without an
// explicit SaveState, matching the file backend's semantics.
func (s *MemoryStore) LoadState(ctx context.Context) (types.WorkflowState, error) {
	return withContext(ctx, func() (types.WorkflowState, error) {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return copyState(s.state), nil
	})
}

// SaveState replaces the stored workflow state.
func (s *MemoryStore) SaveState(ctx context.Context, st types.WorkflowState) error {
	return withContextError(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.state = copyState(st)
		return nil
	})
}

func copyState(st types.WorkflowState) types.WorkflowState {
	out := st
	if st.Checklist != nil {
		out.Checklist = append([]types.CheckItem(nil), st.Checklist...)
	}
	return out
}

// LoadRetry returns a copy of the retry state.
func (s *MemoryStore) LoadRetry(ctx context.Context) (types.RetryState, error) {
	return withContext(ctx, func() (types.RetryState, error) {
		s.mu.RLock()
		defer s.mu.RUnlock()
		out := types.RetryState{Items: make(map[string]types.RetryRecord, len(s.retry.Items))}
		for k, v := range s.retry.Items {
			out.Items[k] = v
		}
		return out, nil
	})
}

// SaveRetry replaces the retry state.
func (s *MemoryStore) SaveRetry(ctx context.Context, rs types.RetryState) error {
	return withContextError(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if rs.Items == nil {
			rs.Items = map[string]types.RetryRecord{}
		}
		s.retry = rs
		return nil
	})
}

// ClearRetry removes all retry records.
func (s *MemoryStore) ClearRetry(ctx context.Context) error {
	return withContextError(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.retry = types.RetryState{Items: map[string]types.RetryRecord{}}
		return nil
	})
}
