// Package vars provides the variable context shared by action commands,
// condition arguments, and "when" guards, plus the ${...} substitution
// resolver.
package vars

import (
	"os"
	"os/exec"
	"regexp"
)

// Pattern matches ${name} references inside strings.
var Pattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// maxResolveDepth bounds nested substitution so circular variable
// definitions terminate.
const maxResolveDepth = 5

// Context holds the flat variable map: built-ins, config variables, and
// runtime values such as the active module.
type Context struct {
	values map[string]string
}

// New builds a Context seeded with built-in variables and the given
// config variables. Config variables override built-ins of the same name.
func New(configVars map[string]string) *Context {
	c := &Context{values: make(map[string]string, len(configVars)+8)}

	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	c.values["cwd"] = cwd
	c.values["project_root"] = cwd

	py := findPython()
	c.values["python"] = py
	c.values["python_exe"] = py

	for k, v := range configVars {
		c.values[k] = v
	}
	return c
}

// findPython resolves the Python interpreter path used by configs that
// invoke Python tooling. Falls back to the bare command name when not
// on PATH so the failure surfaces at execution time.
func findPython() string {
	for _, name := range []string{"python3", "python"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	return "python3"
}

// Set stores or overwrites a variable.
func (c *Context) Set(key, value string) {
	c.values[key] = value
}

// Get returns a variable's value and whether it is defined.
func (c *Context) Get(key string) (string, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Map returns a copy of the variables as a generic map, the shape plugin
// validators and expression rules receive.
func (c *Context) Map() map[string]interface{} {
	m := make(map[string]interface{}, len(c.values))
	for k, v := range c.values {
		m[k] = v
	}
	return m
}

// Resolver returns a Resolver over the current variable values.
func (c *Context) Resolver() *Resolver {
	return &Resolver{values: c.values}
}

// Resolver performs ${...} substitution to a fixed point. A variable's
// value may itself contain references; resolution stops after
// maxResolveDepth iterations or when the text no longer changes.
// Unknown variables are preserved as-is.
type Resolver struct {
	values map[string]string
}

// NewResolver builds a Resolver over a plain map, for callers that do
// not carry a full Context.
func NewResolver(values map[string]string) *Resolver {
	return &Resolver{values: values}
}

// Resolve substitutes variable references in a string.
func (r *Resolver) Resolve(text string) string {
	current := text
	for i := 0; i < maxResolveDepth; i++ {
		next := Pattern.ReplaceAllStringFunc(current, func(match string) string {
			name := match[2 : len(match)-1]
			if v, ok := r.values[name]; ok {
				return v
			}
			return match
		})
		if next == current {
			break
		}
		current = next
	}
	return current
}

// ResolveArgs substitutes variables in every string reachable from a
// condition argument map, descending into nested maps and lists.
func (r *Resolver) ResolveArgs(args map[string]interface{}) map[string]interface{} {
	if args == nil {
		return nil
	}
	out := make(map[string]interface{}, len(args))
	for k, v := range args {
		out[k] = r.resolveValue(v)
	}
	return out
}

func (r *Resolver) resolveValue(v interface{}) interface{} {
	switch val := v.(type) {
	case string:
		return r.Resolve(val)
	case map[string]interface{}:
		return r.ResolveArgs(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = r.resolveValue(item)
		}
		return out
	default:
		return v
	}
}
