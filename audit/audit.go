// Package audit writes the append-only record of every state-changing
// operation, including per-condition outcomes, and answers read-back
// queries such as the agent-review lookup used by AGENT-tagged checks.
package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/songzhibin97/gkit/generator"

	"github.com/hanyki111/workflow-tool/rules"
)

// Audit event types.
const (
	EventTransition    = "TRANSITION"
	EventManualCheck   = "MANUAL_CHECK"
	EventAgentReview   = "AGENT_REVIEW"
	EventForcedSet     = "FORCED_SET"
	EventModuleSet     = "MODULE_SET"
	EventRetryAttempt  = "RETRY_ATTEMPT"
	EventSecretRotated = "SECRET_ROTATED"
)

// LogFileName is the audit log file inside the audit directory.
const LogFileName = "workflow.log"

// Entry is one audit record. Entries are append-only; the engine never
// mutates or deletes them.
type Entry struct {
	ID        uint64                  `json:"id"`
	Timestamp time.Time               `json:"timestamp"`
	Event     string                  `json:"event"`
	Actor     string                  `json:"actor,omitempty"`
	Stage     string                  `json:"stage,omitempty"`
	FromStage string                  `json:"from,omitempty"`
	ToStage   string                  `json:"to,omitempty"`
	Module    string                  `json:"module,omitempty"`
	Item      string                  `json:"item,omitempty"`
	Agent     string                  `json:"agent,omitempty"`
	Summary   string                  `json:"summary,omitempty"`
	Evidence  string                  `json:"evidence,omitempty"`
	Forced    bool                    `json:"forced,omitempty"`
	Reason    string                  `json:"reason,omitempty"`
	Attempt   int                     `json:"attempt,omitempty"`
	Rules     []rules.ConditionResult `json:"rules_checked,omitempty"`
}

// Logger appends entries to the audit log as one JSON document per
// line.
type Logger struct {
	path string
	gen  generator.Generator
}

// NewLogger creates the audit directory if needed and opens a Logger
// over its log file.
func NewLogger(dir string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Logger{
		path: filepath.Join(dir, LogFileName),
		gen:  generator.NewSnowflake(time.Now().Add(-time.Second), 1),
	}, nil
}

// Path returns the log file location.
func (l *Logger) Path() string {
	return l.path
}

// Log appends one entry, assigning its ID and timestamp.
func (l *Logger) Log(event string, entry Entry) error {
	entry.Event = event
	entry.Timestamp = time.Now()
	if id, err := l.gen.NextID(); err == nil {
		entry.ID = id
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return err
	}
	return nil
}

// Entries reads the whole log in order. Undecodable lines are skipped
// so a partially written trailing line cannot poison queries.
func (l *Logger) Entries() ([]Entry, error) {
	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, scanner.Err()
}

// HasAgentReview reports whether an AGENT_REVIEW entry exists for the
// given agent in the given stage.
func (l *Logger) HasAgentReview(agent, stage string) (bool, error) {
	entries, err := l.Entries()
	if err != nil {
		return false, err
	}
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e.Event == EventAgentReview && e.Agent == agent && e.Stage == stage {
			return true, nil
		}
	}
	return false, nil
}

// FileHash returns the SHA-256 hex digest of a file, used as evidence
// for passing file conditions. Unreadable or missing files hash to a
// sentinel string rather than an error.
func FileHash(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return "not_found"
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "error"
	}
	return hex.EncodeToString(h.Sum(nil))
}
