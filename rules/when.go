package rules

import (
	"fmt"
	"strings"

	"github.com/hanyki111/workflow-tool/vars"
)

// The "when" guard supports a single binary operator against a string
// or a bracketed string list. It is deliberately not a general
// expression language; anything beyond this grammar is rejected when
// the configuration is loaded.
//
//	${var} == "value"
//	${var} != "value"
//	${var} in ["a", "b"]
//	${var} not in ["a", "b"]
var whenOperators = []string{" not in ", " in ", " != ", " == "}

// ValidateWhen checks a guard expression against the fixed grammar.
// An empty expression is valid (always true). Used at config load time
// so an unsupported operator is a ConfigError, not an evaluation error.
func ValidateWhen(expr string) error {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil
	}
	for _, op := range whenOperators {
		left, right, ok := splitOnce(expr, op)
		if !ok {
			continue
		}
		if strings.TrimSpace(left) == "" || strings.TrimSpace(right) == "" {
			return fmt.Errorf("when expression %q: missing operand for %q", expr, strings.TrimSpace(op))
		}
		if strings.Contains(right, "&&") || strings.Contains(right, "||") {
			return fmt.Errorf("when expression %q: boolean connectives are not supported", expr)
		}
		if op == " in " || op == " not in " {
			if _, err := parseList(right); err != nil {
				return fmt.Errorf("when expression %q: %w", expr, err)
			}
		}
		return nil
	}
	return fmt.Errorf("when expression %q: unsupported syntax (expected ==, !=, in, or not in)", expr)
}

// EvalWhen evaluates a guard expression. Variables are interpolated
// first; undefined variables resolve to the empty string.
func EvalWhen(expr string, lookup func(string) (string, bool)) (bool, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return true, nil
	}
	for _, op := range whenOperators {
		left, right, ok := splitOnce(expr, op)
		if !ok {
			continue
		}
		lval := parseValue(left, lookup)
		switch op {
		case " == ":
			return lval == parseValue(right, lookup), nil
		case " != ":
			return lval != parseValue(right, lookup), nil
		case " in ", " not in ":
			list, err := parseList(right)
			if err != nil {
				return false, fmt.Errorf("when expression %q: %w", expr, err)
			}
			found := false
			for _, item := range list {
				if resolveBare(item, lookup) == lval {
					found = true
					break
				}
			}
			if op == " not in " {
				return !found, nil
			}
			return found, nil
		}
	}
	return false, fmt.Errorf("when expression %q: unsupported syntax", expr)
}

// splitOnce splits expr at the first occurrence of op.
func splitOnce(expr, op string) (left, right string, ok bool) {
	idx := strings.Index(expr, op)
	if idx < 0 {
		return "", "", false
	}
	return expr[:idx], expr[idx+len(op):], true
}

// parseValue interpolates variables in a single operand and strips one
// level of quotes.
func parseValue(s string, lookup func(string) (string, bool)) string {
	return unquote(resolveRefs(strings.TrimSpace(s), lookup))
}

// resolveBare resolves a list element that may itself be a ${var}
// reference.
func resolveBare(s string, lookup func(string) (string, bool)) string {
	return resolveRefs(s, lookup)
}

// resolveRefs replaces ${name} references, mapping undefined variables
// to the empty string (a guard against unset context never errors).
func resolveRefs(s string, lookup func(string) (string, bool)) string {
	return vars.Pattern.ReplaceAllStringFunc(s, func(match string) string {
		name := match[2 : len(match)-1]
		if v, ok := lookup(name); ok {
			return v
		}
		return ""
	})
}

// parseList parses a bracketed list like ["a", 'b', c]. A single bare
// value is wrapped in a one-element list.
func parseList(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "[") {
		return []string{unquote(s)}, nil
	}
	if !strings.HasSuffix(s, "]") {
		return nil, fmt.Errorf("invalid list syntax: %s", s)
	}
	inner := strings.TrimSpace(s[1 : len(s)-1])
	if inner == "" {
		return nil, nil
	}
	parts := strings.Split(inner, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, unquote(strings.TrimSpace(p)))
	}
	return out, nil
}

// unquote strips matching single or double quotes from both ends.
func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
