package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func typedDefinition(t *testing.T) *ToolDefinition {
	t.Helper()
	reg, err := NewRegistry([]ToolEntry{{
		Name:    "typed",
		Binding: "echo",
		Params: []ParamSpec{
			{Name: "count", Type: TypeInteger},
			{Name: "ratio", Type: TypeNumber},
			{Name: "label", Type: TypeString},
			{Name: "flag", Type: TypeBoolean},
			{Name: "meta", Type: TypeObject},
			{Name: "tags", Type: TypeArray},
		},
	}}, funcBackend{"echo": echo})
	require.NoError(t, err)
	def, err := reg.Lookup("typed")
	require.NoError(t, err)
	return def
}

func TestValidateCanonicalForms(t *testing.T) {
	def := typedDefinition(t)

	tests := []struct {
		name  string
		param string
		in    any
		want  any
	}{
		{"int from int64", "count", int64(3), int64(3)},
		{"int from int", "count", 3, int64(3)},
		{"int from integral float", "count", 3.0, int64(3)},
		{"int from string", "count", "42", int64(42)},
		{"leading zero is decimal", "count", "08", int64(8)},
		{"int from float string", "count", "5.0", int64(5)},
		{"number from int", "ratio", int64(2), 2.0},
		{"number from string", "ratio", "12.5", 12.5},
		{"string from int", "label", int64(1234), "1234"},
		{"bool", "flag", false, false},
		{"bool from string", "flag", "true", true},
		{"object", "meta", map[string]any{"a": int64(1)}, map[string]any{"a": int64(1)}},
		{"object from JSON string", "meta", `{"a": "b"}`, map[string]any{"a": "b"}},
		{"array from JSON string", "tags", `["x", "y"]`, []any{"x", "y"}},
		{"array of strings", "tags", []string{"x"}, []any{"x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, diags, err := Validate(def, map[string]any{tt.param: tt.in})
			require.NoError(t, err)
			assert.Empty(t, diags)
			assert.Equal(t, tt.want, args[tt.param])
		})
	}
}

func TestValidateTypeMismatch(t *testing.T) {
	def := typedDefinition(t)

	tests := []struct {
		name  string
		param string
		in    any
	}{
		{"fractional integer", "count", 3.5},
		{"word as integer", "count", "three"},
		{"bool as integer", "count", true},
		{"bool as number", "ratio", true},
		{"bool as string", "label", true},
		{"map as string", "label", map[string]any{}},
		{"word as bool", "flag", "evet"},
		{"number as bool", "flag", int64(1)},
		{"bad JSON object", "meta", "{nope"},
		{"scalar as array", "tags", int64(1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Validate(def, map[string]any{tt.param: tt.in})
			var cerr *CallError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, KindTypeMismatch, cerr.Kind)
			assert.Equal(t, tt.param, cerr.Param)
			assert.True(t, cerr.IsValidation())
		})
	}
}

func TestValidateDefaultsAndRequired(t *testing.T) {
	reg := defaultRegistry(t)
	def, err := reg.Lookup("get_bill_history")
	require.NoError(t, err)

	args, diags, err := Validate(def, map[string]any{"user_id": "1234"})
	require.NoError(t, err)
	assert.Empty(t, diags)
	assert.Equal(t, map[string]any{"user_id": "1234", "limit": int64(6)}, args)

	_, _, err = Validate(def, map[string]any{"limit": 3})
	var cerr *CallError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, KindMissingParameter, cerr.Kind)
	assert.Equal(t, "user_id", cerr.Param)

	_, _, err = Validate(def, map[string]any{"user_id": nil})
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, KindMissingParameter, cerr.Kind)
}

func TestValidateIsIdempotent(t *testing.T) {
	reg := defaultRegistry(t)
	def, err := reg.Lookup("get_bill_history")
	require.NoError(t, err)

	first, _, err := Validate(def, map[string]any{"user_id": int64(1234), "limit": "4"})
	require.NoError(t, err)
	second, diags, err := Validate(def, first)
	require.NoError(t, err)
	assert.Empty(t, diags)
	assert.Equal(t, first, second)
}

func TestValidateUnknownArguments(t *testing.T) {
	reg := defaultRegistry(t)
	def, err := reg.Lookup("get_current_bill")
	require.NoError(t, err)

	args, diags, err := Validate(def, map[string]any{"user_id": "1234", "month": "mart", "detail": true})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"user_id": "1234"}, args)
	require.Len(t, diags, 2)
	assert.Equal(t, DiagUnknownArgument, diags[0].Kind)
	assert.Contains(t, diags[0].Message, `"detail"`)
	assert.Contains(t, diags[1].Message, `"month"`)
}

func TestValidateConstraints(t *testing.T) {
	reg := defaultRegistry(t)

	history, err := reg.Lookup("get_bill_history")
	require.NoError(t, err)
	_, _, err = Validate(history, map[string]any{"user_id": "1234", "limit": 50})
	var cerr *CallError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, KindConstraintViolation, cerr.Kind)
	assert.Equal(t, "limit", cerr.Param)

	pay, err := reg.Lookup("pay_bill")
	require.NoError(t, err)
	_, _, err = Validate(pay, map[string]any{"bill_id": "F-2025-02-1234", "method": "cash"})
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, KindConstraintViolation, cerr.Kind)
	assert.Equal(t, "method", cerr.Param)

	args, _, err := Validate(pay, map[string]any{"bill_id": "F-2025-02-1234", "method": "credit_card"})
	require.NoError(t, err)
	assert.Equal(t, "credit_card", args["method"])
}

func TestValidateNilDefinition(t *testing.T) {
	_, _, err := Validate(nil, map[string]any{})
	var cerr *CallError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, KindUnknownTool, cerr.Kind)
}
