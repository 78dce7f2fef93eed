package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hanyki111/workflow-tool/types"
)

// FileStore persists state as JSON documents on disk. Saves are atomic:
// the document is written to a temporary file in the same directory and
// renamed over the target, so an interrupted invocation leaves the
// prior state intact.
type FileStore struct {
	statePath string
	retryPath string
}

// NewFileStore creates a FileStore over the given state and retry file
// paths.
func NewFileStore(statePath, retryPath string) *FileStore {
	return &FileStore{statePath: statePath, retryPath: retryPath}
}

// LoadState reads the workflow state. A missing file yields the zero
// state; an unreadable or structurally invalid file yields
// ErrStateCorrupt.
func (s *FileStore) LoadState(ctx context.Context) (types.WorkflowState, error) {
	return withContext(ctx, func() (types.WorkflowState, error) {
		var st types.WorkflowState
		data, err := os.ReadFile(s.statePath)
		if os.IsNotExist(err) {
			return st, nil
		}
		if err != nil {
			return st, fmt.Errorf("%w: %v", ErrStateCorrupt, err)
		}
		if err := json.Unmarshal(data, &st); err != nil {
			return types.WorkflowState{}, fmt.Errorf("%w: %s: %v", ErrStateCorrupt, s.statePath, err)
		}
		return st, nil
	})
}

// SaveState atomically replaces the workflow state document.
func (s *FileStore) SaveState(ctx context.Context, st types.WorkflowState) error {
	return withContextError(ctx, func() error {
		return writeJSONAtomic(s.statePath, st)
	})
}

// LoadRetry reads retry state. Retry state is ephemeral: a missing or
// unreadable file yields the empty state.
func (s *FileStore) LoadRetry(ctx context.Context) (types.RetryState, error) {
	return withContext(ctx, func() (types.RetryState, error) {
		rs := types.RetryState{Items: map[string]types.RetryRecord{}}
		data, err := os.ReadFile(s.retryPath)
		if err != nil {
			return rs, nil
		}
		if err := json.Unmarshal(data, &rs); err != nil {
			return types.RetryState{Items: map[string]types.RetryRecord{}}, nil
		}
		if rs.Items == nil {
			rs.Items = map[string]types.RetryRecord{}
		}
		return rs, nil
	})
}

// SaveRetry atomically replaces the retry state document.
func (s *FileStore) SaveRetry(ctx context.Context, rs types.RetryState) error {
	return withContextError(ctx, func() error {
		return writeJSONAtomic(s.retryPath, rs)
	})
}

// ClearRetry removes all retry records.
func (s *FileStore) ClearRetry(ctx context.Context) error {
	return withContextError(ctx, func() error {
		err := os.Remove(s.retryPath)
		if err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	})
}

// writeJSONAtomic writes v as indented JSON via temp-file-and-rename in
// the target's directory.
func writeJSONAtomic(path string, v interface{}) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
