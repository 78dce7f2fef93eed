package plugins

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ExprValidator evaluates the boolean expression in args["expr"] against
// the condition context. Compiled programs are cached per expression so
// repeated gate evaluations do not recompile.
type ExprValidator struct {
	cache map[string]*vm.Program
	mu    sync.RWMutex
}

// NewExprValidator creates an ExprValidator with an initialized cache.
func NewExprValidator() *ExprValidator {
	return &ExprValidator{cache: make(map[string]*vm.Program)}
}

// Validate implements Validator. The expression must evaluate to a
// boolean; any other result type is an error.
func (v *ExprValidator) Validate(args map[string]interface{}, context map[string]interface{}) (bool, error) {
	expression, _ := args["expr"].(string)
	if expression == "" {
		return false, fmt.Errorf("expr: missing required arg %q", "expr")
	}

	v.mu.RLock()
	program, ok := v.cache[expression]
	v.mu.RUnlock()

	if !ok {
		v.mu.Lock()
		if program, ok = v.cache[expression]; !ok {
			var err error
			program, err = expr.Compile(expression, expr.Env(context))
			if err != nil {
				v.mu.Unlock()
				return false, err
			}
			v.cache[expression] = program
		}
		v.mu.Unlock()
	}

	result, err := expr.Run(program, context)
	if err != nil {
		return false, err
	}

	if boolResult, ok := result.(bool); ok {
		return boolResult, nil
	}
	return false, fmt.Errorf("expression %q did not evaluate to a boolean, got %T", expression, result)
}
