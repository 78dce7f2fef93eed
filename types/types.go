package types

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the in-memory representation of a workflow configuration
// document. Every transition target and ruleset reference is validated
// against the same Config at load time.
type Config struct {
	Version   string                 `yaml:"version"`
	Variables map[string]string      `yaml:"variables"`
	Plugins   map[string]string      `yaml:"plugins"` // rule name -> validator kind
	Rulesets  map[string][]Condition `yaml:"rulesets"`
	Stages    map[string]Stage       `yaml:"stages"`

	GuideFile  string `yaml:"guide_file"`
	StateFile  string `yaml:"state_file"`
	RetryFile  string `yaml:"retry_file"`
	SecretFile string `yaml:"secret_file"`
	StatusFile string `yaml:"status_file"`
	AuditDir   string `yaml:"audit_dir"`

	// StateBackend selects where persisted state lives: "file" (default)
	// or "redis".
	StateBackend string       `yaml:"state_backend"`
	Redis        *RedisConfig `yaml:"redis,omitempty"`
}

// RedisConfig configures the optional Redis state backend.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// Stage is a named state in the flat workflow state machine. Stage ids
// form a flat namespace; any milestone/phase hierarchy is a naming
// convention, not engine structure.
type Stage struct {
	ID          string              `yaml:"-"`
	Label       string              `yaml:"label"`
	Checklist   []ChecklistItemSpec `yaml:"checklist"`
	Transitions []Transition        `yaml:"transitions"`
	OnEnter     []ActionSpec        `yaml:"on_enter"`
}

// Transition points at a target stage and carries the conditions that
// must all pass (AND semantics). Transitions are evaluated in declaration
// order; the first fully satisfied one wins.
type Transition struct {
	Target     string      `yaml:"target"`
	Conditions []Condition `yaml:"conditions"`
}

// Condition is a single gate: either a ruleset reference or a direct
// rule (built-in or plugin) with arguments and an optional "when" guard.
type Condition struct {
	Rule        string                 `yaml:"rule,omitempty"`
	UseRuleset  string                 `yaml:"use_ruleset,omitempty"`
	Args        map[string]interface{} `yaml:"args,omitempty"`
	When        string                 `yaml:"when,omitempty"`
	FailMessage string                 `yaml:"fail_message,omitempty"`
}

// ChecklistItemSpec is the configured template for one checklist item.
// In YAML it can be a plain string (just text) or a mapping with the
// full set of fields.
type ChecklistItemSpec struct {
	Text             string       `yaml:"text"`
	Action           *ActionSpec  `yaml:"action,omitempty"`
	FileCheck        *FileCheck   `yaml:"file_check,omitempty"`
	Retry            *RetryPolicy `yaml:"retry,omitempty"`
	AllowedExitCodes []int        `yaml:"allowed_exit_codes,omitempty"`
	TimeoutSec       int          `yaml:"timeout_sec,omitempty"`
	RequireArgs      bool         `yaml:"require_args,omitempty"`
}

// UnmarshalYAML accepts both the scalar and the mapping form.
func (s *ChecklistItemSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		return node.Decode(&s.Text)
	}
	type plain ChecklistItemSpec
	return node.Decode((*plain)(s))
}

// ActionSpec is a command to run when an item is checked: either a
// single command string or a per-platform map. An "all" entry overrides
// platform-specific entries.
type ActionSpec struct {
	Command   string
	Platforms map[string]string
}

// UnmarshalYAML accepts a scalar command or a platform map.
func (a *ActionSpec) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		return node.Decode(&a.Command)
	case yaml.MappingNode:
		return node.Decode(&a.Platforms)
	default:
		return fmt.Errorf("action must be a string or a platform map, got %s", node.Tag)
	}
}

// MarshalYAML renders the same two forms back out.
func (a ActionSpec) MarshalYAML() (interface{}, error) {
	if a.Command != "" {
		return a.Command, nil
	}
	return a.Platforms, nil
}

// FileCheck is the shell-free alternative to an Action: classify the
// content of a file by pattern matching.
type FileCheck struct {
	Path            string   `yaml:"path"`
	SuccessContains []string `yaml:"success_contains,omitempty"`
	FailContains    []string `yaml:"fail_contains,omitempty"`
	FailIfMissing   bool     `yaml:"fail_if_missing,omitempty"`
}

// RetryPolicy bounds the cross-invocation retry loop for a failing
// action. Content patterns refine the action's success classification.
type RetryPolicy struct {
	Enabled         bool     `yaml:"enabled"`
	MaxRetries      int      `yaml:"max_retries"`
	Hint            string   `yaml:"hint,omitempty"`
	SuccessContains []string `yaml:"success_contains,omitempty"`
	FailContains    []string `yaml:"fail_contains,omitempty"`
}

// CheckItem is the persisted state of one checklist item, created from
// its spec when a stage is entered.
type CheckItem struct {
	Text          string `json:"text"`
	Checked       bool   `json:"checked"`
	Evidence      string `json:"evidence,omitempty"`
	CheckedBy     string `json:"checked_by,omitempty"`
	RequiredAgent string `json:"required_agent,omitempty"`
	CmdTag        string `json:"cmd_tag,omitempty"`
}

// UserApprove reports whether the item requires token approval.
func (c CheckItem) UserApprove() bool {
	return strings.HasPrefix(strings.TrimSpace(c.Text), "[USER-APPROVE]")
}

// WorkflowState is the persisted workflow position. Milestone and phase
// are opaque labels; the engine does not interpret them.
type WorkflowState struct {
	CurrentStage string      `json:"current_stage"`
	Milestone    string      `json:"milestone,omitempty"`
	Phase        string      `json:"phase,omitempty"`
	ActiveModule string      `json:"active_module"`
	Checklist    []CheckItem `json:"checklist"`
}

// CheckedCount returns how many checklist items are checked.
func (s WorkflowState) CheckedCount() int {
	n := 0
	for _, item := range s.Checklist {
		if item.Checked {
			n++
		}
	}
	return n
}

// RetryState holds per-item retry progress, persisted separately from
// the workflow state and cleared on success or any stage change.
type RetryState struct {
	Items map[string]RetryRecord `json:"items"`
}

// RetryRecord tracks one item's bounded retry loop across invocations.
type RetryRecord struct {
	Attempts    int    `json:"attempts"`
	Goal        string `json:"goal"`
	LastFailure string `json:"last_failure,omitempty"`
}

var (
	agentTagPattern = regexp.MustCompile(`\[AGENT:([\w-]+)\]`)
	cmdTagPattern   = regexp.MustCompile(`\[CMD:([\w-]+(?::[\w-]+)?)\]`)
)

// ClassifyItem extracts the agent and command tags embedded in an item's
// text. The same classification applies to inline checklist definitions
// and guide-file items.
func ClassifyItem(text string) (requiredAgent, cmdTag string) {
	if m := agentTagPattern.FindStringSubmatch(text); m != nil {
		requiredAgent = m[1]
	}
	if m := cmdTagPattern.FindStringSubmatch(text); m != nil {
		cmdTag = m[1]
	}
	return requiredAgent, cmdTag
}

// NewCheckItem builds the persisted item state from raw text, applying
// tag classification.
func NewCheckItem(text string, checked bool) CheckItem {
	agent, cmdTag := ClassifyItem(text)
	return CheckItem{
		Text:          strings.TrimSpace(text),
		Checked:       checked,
		RequiredAgent: agent,
		CmdTag:        cmdTag,
	}
}
