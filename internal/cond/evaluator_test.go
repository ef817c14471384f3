package cond

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlflow-dev/sqlflow/internal/core"
	"github.com/sqlflow-dev/sqlflow/internal/vars"
)

func TestEvaluateComparisons(t *testing.T) {
	cases := []struct {
		expr string
		want bool
	}{
		{"1 == 1", true},
		{"1 != 2", true},
		{"2 < 3", true},
		{"3 <= 3", true},
		{"4 > 3", true},
		{"3 >= 4", false},
		{"1.5 > 1", true},
		{"2 == 2.0", true},
		{"'a' < 'b'", true},
		{"'prod' == 'prod'", true},
		{"'prod' != 'dev'", true},
		{"None == None", true},
		{"None != None", false},
		{"'x' == None", false},
		{"true == true", true},
		{"true != false", true},
	}
	for _, tc := range cases {
		got, err := Evaluate(tc.expr)
		require.NoError(t, err, tc.expr)
		assert.Equal(t, tc.want, got, tc.expr)
	}
}

func TestEvaluateLogic(t *testing.T) {
	cases := []struct {
		expr string
		want bool
	}{
		{"true and true", true},
		{"true and false", false},
		{"false or true", true},
		{"false or false", false},
		{"not false", true},
		{"not (1 == 2)", true},
		{"1 == 1 and 2 == 2 or 3 == 4", true},
		{"(1 == 2 or 2 == 2) and not false", true},
	}
	for _, tc := range cases {
		got, err := Evaluate(tc.expr)
		require.NoError(t, err, tc.expr)
		assert.Equal(t, tc.want, got, tc.expr)
	}
}

func TestEvaluateShortCircuit(t *testing.T) {
	// The right side of a decided and/or would fail if evaluated: a
	// non-boolean operand of "and" is an error. Short-circuiting must
	// skip it.
	got, err := Evaluate("false and 'oops'")
	require.NoError(t, err)
	assert.False(t, got)

	got, err = Evaluate("true or 'oops'")
	require.NoError(t, err)
	assert.True(t, got)

	// When the left side does not decide, the bad operand surfaces.
	_, err = Evaluate("true and 'oops'")
	require.Error(t, err)
}

func TestEvaluateBareIdentsAreStrings(t *testing.T) {
	got, err := Evaluate("prod == prod")
	require.NoError(t, err)
	assert.True(t, got)
}

func TestEvaluateHyphenRepair(t *testing.T) {
	// An unquoted hyphenated word parses as subtraction; two string
	// operands are rejoined with the hyphen.
	got, err := Evaluate("us-east == 'us-east'")
	require.NoError(t, err)
	assert.True(t, got)

	_, err = Evaluate("1 - 2 == 3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "arithmetic is not supported")
}

func TestEvaluateBoolStringEquality(t *testing.T) {
	cases := []struct {
		expr string
		want bool
	}{
		{"true == 'true'", true},
		{"true == 'True'", true},
		{"false == 'FALSE'", true},
		{"true == 'false'", false},
		{"true != 'false'", true},
	}
	for _, tc := range cases {
		got, err := Evaluate(tc.expr)
		require.NoError(t, err, tc.expr)
		assert.Equal(t, tc.want, got, tc.expr)
	}
}

func TestEvaluateBareEqualsGuardrail(t *testing.T) {
	_, err := Evaluate("env = 'prod'")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "use '==' instead")
}

func TestEvaluateFunctionCallsRejected(t *testing.T) {
	_, err := Evaluate("len(x) > 0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "function calls are not allowed")
}

func TestEvaluateNonBooleanResult(t *testing.T) {
	_, err := Evaluate("'just a string'")
	require.Error(t, err)

	var evalErr *core.EvaluationError
	require.True(t, errors.As(err, &evalErr))
	assert.True(t, errors.Is(err, core.ErrEvaluation))
}

func TestEvaluateMixedTypeOrdering(t *testing.T) {
	// Mixed types are unequal but cannot be ordered.
	got, err := Evaluate("'a' == 1")
	require.NoError(t, err)
	assert.False(t, got)

	got, err = Evaluate("'a' != 1")
	require.NoError(t, err)
	assert.True(t, got)

	_, err = Evaluate("'a' < 1")
	require.Error(t, err)
}

func TestEvaluateWithStore(t *testing.T) {
	ctx := context.Background()
	store := vars.NewStore()
	store.Set(vars.TierSet, "env", vars.String("prod"))
	store.Set(vars.TierSet, "count", vars.Int(5))

	got, err := EvaluateWithStore(ctx, "${env} == 'prod' and ${count} > 3", store)
	require.NoError(t, err)
	assert.True(t, got)

	// Undefined variables substitute to None, which compares unequal.
	got, err = EvaluateWithStore(ctx, "${undefined} == 'prod'", store)
	require.NoError(t, err)
	assert.False(t, got)
}
