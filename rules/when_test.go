package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func lookupFrom(values map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := values[name]
		return v, ok
	}
}

func TestEvalWhen(t *testing.T) {
	vars := map[string]string{
		"active_module": "auth",
		"stage":         "impl",
		"empty":         "",
	}

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{"Empty", "", true},
		{"EqualsTrue", `${active_module} == "auth"`, true},
		{"EqualsFalse", `${active_module} == "billing"`, false},
		{"NotEqualsTrue", `${stage} != "plan"`, true},
		{"NotEqualsFalse", `${stage} != "impl"`, false},
		{"InListTrue", `${active_module} in ["auth", "billing"]`, true},
		{"InListFalse", `${active_module} in ["billing", "ops"]`, false},
		{"NotInListTrue", `${active_module} not in ["billing"]`, true},
		{"NotInListFalse", `${active_module} not in ["auth", "billing"]`, false},
		{"LiteralInList", `"a" in ["a", "b"]`, true},
		{"UndefinedVarIsEmpty", `${nope} == ""`, true},
		{"UndefinedVarNeverMatches", `${nope} == "auth"`, false},
		{"SingleQuotes", `${stage} == 'impl'`, true},
		{"BareSingleValueIn", `${stage} in "impl"`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EvalWhen(tt.expr, lookupFrom(vars))
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("UnsupportedSyntax", func(t *testing.T) {
		_, err := EvalWhen("${stage} >= 3", lookupFrom(vars))
		assert.Error(t, err)
	})

	t.Run("BrokenList", func(t *testing.T) {
		_, err := EvalWhen(`${stage} in ["a", "b"`, lookupFrom(vars))
		assert.Error(t, err)
	})
}

func TestValidateWhen(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		{"Empty", "", false},
		{"Equals", `${m} == "x"`, false},
		{"NotEquals", `${m} != "x"`, false},
		{"In", `${m} in ["a", "b"]`, false},
		{"NotIn", `${m} not in ["a"]`, false},
		{"GreaterThan", `${m} > 3`, true},
		{"BooleanAnd", `${m} == "x" && ${n} == "y"`, true},
		{"MissingOperand", `${m} == `, true},
		{"UnterminatedList", `${m} in ["a"`, true},
		{"NoOperator", `${m}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateWhen(tt.expr)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
