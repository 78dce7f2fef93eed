package workflow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hanyki111/workflow-tool/rules"
)

// Standard error definitions
var (
	ErrNotInitialized = errors.New("workflow not initialized")
	ErrStageNotFound  = errors.New("stage not found")
	ErrNoTransitions  = errors.New("no transitions defined from current stage")
	ErrInvalidTarget  = errors.New("invalid transition target")
	ErrReasonRequired = errors.New("a non-empty reason is mandatory for a forced transition")
)

// BlockedError reports why a transition cannot proceed: unchecked
// items, failing conditions, or an unresolved branching point. It is
// not fatal; the caller remediates and retries.
type BlockedError struct {
	Unchecked []string
	Failed    []rules.ConditionResult
	Choices   []string
}

// Error implements error with enough detail to remediate without
// inspecting internal state.
func (e *BlockedError) Error() string {
	var b strings.Builder
	b.WriteString("cannot proceed")
	if len(e.Unchecked) > 0 {
		b.WriteString(": unchecked items:")
		for _, item := range e.Unchecked {
			fmt.Fprintf(&b, "\n  - %s", item)
		}
	}
	if len(e.Failed) > 0 {
		b.WriteString(": failing conditions:")
		for _, res := range e.Failed {
			if res.Satisfied() {
				continue
			}
			msg := res.Message
			if msg == "" {
				msg = res.Error
			}
			fmt.Fprintf(&b, "\n  - %s: %s", res.Rule, msg)
		}
	}
	if len(e.Choices) > 0 {
		fmt.Fprintf(&b, "\n  valid targets: %s", strings.Join(e.Choices, ", "))
	}
	return b.String()
}
