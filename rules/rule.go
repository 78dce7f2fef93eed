// Package rules evaluates transition conditions. Every condition
// produces a three-valued outcome (PASS/FAIL/SKIPPED) rather than a
// boolean-or-error, so guard skips and deliberate bypasses stay visible
// in the audit trail.
package rules

import (
	"fmt"

	"github.com/hanyki111/workflow-tool/plugins"
	"github.com/hanyki111/workflow-tool/types"
	"github.com/hanyki111/workflow-tool/vars"
)

// Outcome is the result of evaluating one condition.
type Outcome string

const (
	OutcomePass    Outcome = "PASS"
	OutcomeFail    Outcome = "FAIL"
	OutcomeSkipped Outcome = "SKIPPED"
)

// Skip reasons distinguish a false "when" guard from a deliberately
// bypassed condition in the audit trail.
const (
	SkipWhenGuard = "when_guard"
	SkipBypassed  = "bypassed"
)

// Built-in rule names understood without a plugin registration.
const (
	RuleAllChecked   = "all_checked"
	RuleUserApproved = "user_approved"
)

// ConditionResult records the outcome of one condition for reporting
// and for the audit log. A SKIPPED outcome satisfies its transition
// vacuously.
type ConditionResult struct {
	Rule       string  `json:"rule"`
	Outcome    Outcome `json:"outcome"`
	SkipReason string  `json:"skip_reason,omitempty"`
	Message    string  `json:"message,omitempty"`
	Error      string  `json:"error,omitempty"`
	Evidence   string  `json:"evidence,omitempty"`
}

// Satisfied reports whether the result counts toward a passing
// transition.
func (r ConditionResult) Satisfied() bool {
	return r.Outcome == OutcomePass || r.Outcome == OutcomeSkipped
}

// Input carries everything a condition evaluation can consult.
type Input struct {
	State *types.WorkflowState
	Vars  *vars.Context
	// Bypass marks rule conditions SKIPPED instead of evaluating them
	// (the --skip-conditions path). When guards are still evaluated so
	// the audit trail records which skip was which.
	Bypass bool
}

// Evaluator judges condition lists against the plugin registry and the
// named rulesets of one Config.
type Evaluator struct {
	registry *plugins.Registry
	rulesets map[string][]types.Condition

	// FileHasher, when set, is used to attach content-hash evidence to
	// passing file_exists conditions.
	FileHasher func(path string) string
}

// NewEvaluator creates an Evaluator over a registry and ruleset map.
func NewEvaluator(registry *plugins.Registry, rulesets map[string][]types.Condition) *Evaluator {
	return &Evaluator{registry: registry, rulesets: rulesets}
}

// Expand flattens ruleset references into their member conditions.
// Flattening is one level only; rulesets do not nest, which config
// validation enforces.
func (e *Evaluator) Expand(conds []types.Condition) ([]types.Condition, error) {
	out := make([]types.Condition, 0, len(conds))
	for _, cond := range conds {
		if cond.UseRuleset == "" {
			out = append(out, cond)
			continue
		}
		members, ok := e.rulesets[cond.UseRuleset]
		if !ok {
			return nil, fmt.Errorf("ruleset %q not found", cond.UseRuleset)
		}
		out = append(out, members...)
	}
	return out, nil
}

// EvaluateAll expands and judges a condition list. The boolean result is
// true when every condition is satisfied (PASS or SKIPPED).
func (e *Evaluator) EvaluateAll(conds []types.Condition, in Input) ([]ConditionResult, bool, error) {
	expanded, err := e.Expand(conds)
	if err != nil {
		return nil, false, err
	}

	results := make([]ConditionResult, 0, len(expanded))
	allPass := true
	for _, cond := range expanded {
		res := e.evaluate(cond, in)
		if !res.Satisfied() {
			allPass = false
		}
		results = append(results, res)
	}
	return results, allPass, nil
}

// evaluate judges a single expanded condition.
func (e *Evaluator) evaluate(cond types.Condition, in Input) ConditionResult {
	res := ConditionResult{Rule: cond.Rule}

	if cond.When != "" {
		pass, err := EvalWhen(cond.When, in.Vars.Get)
		if err != nil {
			res.Outcome = OutcomeFail
			res.Error = err.Error()
			return res
		}
		if !pass {
			res.Outcome = OutcomeSkipped
			res.SkipReason = SkipWhenGuard
			return res
		}
	}

	if in.Bypass {
		res.Outcome = OutcomeSkipped
		res.SkipReason = SkipBypassed
		return res
	}

	resolver := in.Vars.Resolver()
	args := resolver.ResolveArgs(cond.Args)

	switch cond.Rule {
	case RuleAllChecked:
		for _, item := range in.State.Checklist {
			if !item.Checked {
				return e.fail(res, cond, resolver, fmt.Sprintf("checklist item not checked: %s", item.Text))
			}
		}
		res.Outcome = OutcomePass
		return res

	case RuleUserApproved:
		for _, item := range in.State.Checklist {
			if item.UserApprove() && !item.Checked {
				return e.fail(res, cond, resolver, fmt.Sprintf("approval item not checked: %s", item.Text))
			}
		}
		res.Outcome = OutcomePass
		return res
	}

	validator, ok := e.registry.Get(cond.Rule)
	if !ok {
		// A missing validator is reported distinctly from a normal rule
		// failure so misconfiguration is not mistaken for an unmet gate.
		res.Outcome = OutcomeFail
		res.Error = fmt.Sprintf("no validator registered for rule %q", cond.Rule)
		return res
	}

	pass, err := validator.Validate(args, e.pluginContext(in))
	if err != nil {
		res.Outcome = OutcomeFail
		res.Error = err.Error()
		return res
	}
	if !pass {
		return e.fail(res, cond, resolver, fmt.Sprintf("condition failed: %s %v", cond.Rule, args))
	}

	res.Outcome = OutcomePass
	if _, isFile := validator.(*plugins.FileExistsValidator); isFile && e.FileHasher != nil {
		if path, ok := args["path"].(string); ok {
			res.Evidence = e.FileHasher(path)
		}
	}
	return res
}

// fail fills a FAIL result, preferring the condition's templated
// fail_message over the generic description.
func (e *Evaluator) fail(res ConditionResult, cond types.Condition, resolver *vars.Resolver, generic string) ConditionResult {
	res.Outcome = OutcomeFail
	if cond.FailMessage != "" {
		res.Message = resolver.Resolve(cond.FailMessage)
	} else {
		res.Message = generic
	}
	return res
}

// pluginContext builds the context map handed to plugin validators.
func (e *Evaluator) pluginContext(in Input) map[string]interface{} {
	ctx := in.Vars.Map()
	if in.State != nil {
		ctx["active_module"] = in.State.ActiveModule
		ctx["stage"] = in.State.CurrentStage
	}
	return ctx
}
