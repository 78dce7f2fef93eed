// Package plugins provides the validator registry consulted by the
// condition evaluator. Validators are resolved statically: the
// configuration maps a rule name to a built-in validator kind, and the
// registry is populated once at startup. There is no dynamic loading.
package plugins

import (
	"errors"
	"fmt"
)

// ErrUnknownKind indicates a configured plugin references a validator
// kind this build does not provide.
var ErrUnknownKind = errors.New("unknown validator kind")

// Validator is the single capability contract every plugin implements.
// Context carries the active module, current stage, and all config
// variables.
type Validator interface {
	Validate(args map[string]interface{}, context map[string]interface{}) (bool, error)
}

// Factory constructs a validator instance for one configured rule name.
type Factory func() Validator

// builtinKinds maps validator kind identifiers to factories.
var builtinKinds = map[string]Factory{
	"file_exists": func() Validator { return &FileExistsValidator{} },
	"command":     func() Validator { return &CommandValidator{} },
	"expr":        func() Validator { return NewExprValidator() },
}

// Registry resolves rule names to validator instances.
type Registry struct {
	validators map[string]Validator
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{validators: make(map[string]Validator)}
}

// Register binds a rule name to a validator instance. Later
// registrations overwrite earlier ones.
func (r *Registry) Register(name string, v Validator) {
	r.validators[name] = v
}

// Get returns the validator bound to a rule name.
func (r *Registry) Get(name string) (Validator, bool) {
	v, ok := r.validators[name]
	return v, ok
}

// LoadFromConfig populates the registry from the config's plugin map
// (rule name -> validator kind). An unknown kind fails the whole load.
func (r *Registry) LoadFromConfig(plugins map[string]string) error {
	for name, kind := range plugins {
		factory, ok := builtinKinds[kind]
		if !ok {
			return fmt.Errorf("plugin %q: %w: %q", name, ErrUnknownKind, kind)
		}
		r.Register(name, factory())
	}
	return nil
}

// Kinds lists the validator kinds this build provides.
func Kinds() []string {
	out := make([]string, 0, len(builtinKinds))
	for k := range builtinKinds {
		out = append(out, k)
	}
	return out
}
