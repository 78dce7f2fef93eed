// Package config loads and validates the workflow configuration
// document. Malformed documents and dangling references are rejected
// here, before any state is touched.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hanyki111/workflow-tool/rules"
	"github.com/hanyki111/workflow-tool/types"
)

// ErrInvalid marks configuration errors: malformed documents, dangling
// references, or unsupported guard expressions. All are fatal at load
// time.
var ErrInvalid = errors.New("invalid configuration")

// Default file locations, relative to the project root.
const (
	DefaultPath       = "workflow.yaml"
	DefaultGuideFile  = ".memory/docs/PROJECT_MANAGEMENT_GUIDE.md"
	DefaultStateFile  = ".workflow/state.json"
	DefaultRetryFile  = ".workflow/retry.json"
	DefaultSecretFile = ".workflow/secret"
	DefaultAuditDir   = ".workflow/audit"
)

// Load reads, parses, and validates a configuration file.
func Load(path string) (*types.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return Parse(data)
}

// Parse parses and validates a configuration document.
func Parse(data []byte) (*types.Config, error) {
	var cfg types.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	applyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *types.Config) {
	if cfg.Version == "" {
		cfg.Version = "1.0"
	}
	if cfg.GuideFile == "" {
		cfg.GuideFile = DefaultGuideFile
	}
	if cfg.StateFile == "" {
		cfg.StateFile = DefaultStateFile
	}
	if cfg.RetryFile == "" {
		cfg.RetryFile = DefaultRetryFile
	}
	if cfg.SecretFile == "" {
		cfg.SecretFile = DefaultSecretFile
	}
	if cfg.AuditDir == "" {
		cfg.AuditDir = DefaultAuditDir
	}
	if cfg.StateBackend == "" {
		cfg.StateBackend = "file"
	}
	if cfg.Variables == nil {
		cfg.Variables = map[string]string{}
	}

	// Stage ids live in the map keys; copy them onto the values.
	for id, stage := range cfg.Stages {
		stage.ID = id
		if stage.Label == "" {
			stage.Label = id
		}
		cfg.Stages[id] = stage
	}
}

// Validate checks graph integrity and grammar constraints:
// transition targets and ruleset references must resolve, rulesets must
// not nest, "when" guards must use the fixed grammar, and an item may
// carry an Action or a FileCheck but not both.
func Validate(cfg *types.Config) error {
	if cfg.StateBackend != "file" && cfg.StateBackend != "redis" {
		return fmt.Errorf("%w: unknown state_backend %q", ErrInvalid, cfg.StateBackend)
	}
	if cfg.StateBackend == "redis" && cfg.Redis == nil {
		return fmt.Errorf("%w: state_backend redis requires a redis section", ErrInvalid)
	}

	for name, conds := range cfg.Rulesets {
		for i, cond := range conds {
			if cond.UseRuleset != "" {
				return fmt.Errorf("%w: ruleset %q condition %d: rulesets cannot reference other rulesets", ErrInvalid, name, i)
			}
			if err := validateCondition(cond, fmt.Sprintf("ruleset %q condition %d", name, i)); err != nil {
				return err
			}
		}
	}

	for id, stage := range cfg.Stages {
		for ti, trans := range stage.Transitions {
			if _, ok := cfg.Stages[trans.Target]; !ok {
				return fmt.Errorf("%w: stage %q transition %d targets non-existent stage %q", ErrInvalid, id, ti, trans.Target)
			}
			for ci, cond := range trans.Conditions {
				where := fmt.Sprintf("stage %q transition %d condition %d", id, ti, ci)
				if cond.UseRuleset != "" {
					if _, ok := cfg.Rulesets[cond.UseRuleset]; !ok {
						return fmt.Errorf("%w: %s references non-existent ruleset %q", ErrInvalid, where, cond.UseRuleset)
					}
					continue
				}
				if err := validateCondition(cond, where); err != nil {
					return err
				}
			}
		}

		for ii, item := range stage.Checklist {
			if item.Action != nil && item.FileCheck != nil {
				return fmt.Errorf("%w: stage %q checklist item %d: action and file_check are mutually exclusive", ErrInvalid, id, ii)
			}
			if item.Retry != nil && item.Retry.Enabled && item.Retry.MaxRetries < 1 {
				return fmt.Errorf("%w: stage %q checklist item %d: retry requires max_retries >= 1", ErrInvalid, id, ii)
			}
		}
	}
	return nil
}

func validateCondition(cond types.Condition, where string) error {
	if cond.Rule == "" {
		return fmt.Errorf("%w: %s: must set either rule or use_ruleset", ErrInvalid, where)
	}
	if cond.When != "" {
		if err := rules.ValidateWhen(cond.When); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalid, where, err)
		}
	}
	return nil
}
