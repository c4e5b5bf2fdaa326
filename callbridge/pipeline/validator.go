package pipeline

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cast"
	"github.com/xeipuuv/gojsonschema"
)

// Validate checks raw arguments against def and returns them in canonical
// form: integers as int64, numbers as float64, objects as map[string]any and
// arrays as []any. Undeclared arguments are dropped and reported as
// diagnostics. The returned error is a *CallError for the first failing
// parameter in declaration order.
//
// Validate has no side effects and is idempotent: feeding its output back in
// yields the same arguments.
func Validate(def *ToolDefinition, raw map[string]any) (map[string]any, []Diagnostic, error) {
	if def == nil {
		return nil, nil, &CallError{Kind: KindUnknownTool, Message: "no definition"}
	}

	args := make(map[string]any, len(def.Params))
	for _, p := range def.Params {
		v, present := raw[p.Name]
		if !present || v == nil {
			switch {
			case p.Required:
				return nil, nil, &CallError{Kind: KindMissingParameter, Message: "required parameter is missing", Param: p.Name}
			case p.HasDefault():
				args[p.Name] = p.Default
			}
			continue
		}
		cv, err := coerce(p.Type, v)
		if err != nil {
			return nil, nil, &CallError{Kind: KindTypeMismatch, Message: err.Error(), Param: p.Name}
		}
		args[p.Name] = cv
	}

	var diags []Diagnostic
	var unknown []string
	for k := range raw {
		if _, ok := def.Param(k); !ok {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	for _, k := range unknown {
		diags = append(diags, Diagnostic{
			Kind:    DiagUnknownArgument,
			Message: fmt.Sprintf("%s: undeclared argument %q dropped", def.Name, k),
		})
	}

	if err := checkConstraints(def, args); err != nil {
		return nil, diags, err
	}
	return args, diags, nil
}

// checkConstraints runs the definition's JSON schema over canonical args.
func checkConstraints(def *ToolDefinition, args map[string]any) error {
	if def.constraints == nil {
		return nil
	}
	res, err := def.constraints.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return &CallError{Kind: KindConstraintViolation, Message: fmt.Sprintf("schema validation failed: %v", err)}
	}
	if res.Valid() {
		return nil
	}
	first := res.Errors()[0]
	param := first.Field()
	if param == "(root)" {
		param = ""
	}
	return &CallError{Kind: KindConstraintViolation, Message: first.Description(), Param: param}
}

func hasConstraints(def *ToolDefinition) bool {
	for _, p := range def.Params {
		if len(p.Enum) > 0 || p.Minimum != nil || p.Maximum != nil {
			return true
		}
	}
	return false
}

// coerce converts v to the canonical Go type of t when that is lossless.
func coerce(t ParamType, v any) (any, error) {
	switch t {
	case TypeInteger:
		return toInt64(v)
	case TypeNumber:
		if _, isBool := v.(bool); isBool {
			return nil, mismatch(t, v)
		}
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return nil, mismatch(t, v)
		}
		return f, nil
	case TypeString:
		switch v.(type) {
		case bool, map[string]any, []any:
			return nil, mismatch(t, v)
		}
		s, err := cast.ToStringE(v)
		if err != nil {
			return nil, mismatch(t, v)
		}
		return s, nil
	case TypeBoolean:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			parsed, err := cast.ToBoolE(strings.TrimSpace(b))
			if err != nil {
				return nil, mismatch(t, v)
			}
			return parsed, nil
		}
		return nil, mismatch(t, v)
	case TypeObject:
		return toObject(v)
	case TypeArray:
		return toArray(v)
	}
	return nil, fmt.Errorf("unsupported type %q", t)
}

func mismatch(t ParamType, v any) error {
	return fmt.Errorf("expected %s, got %T", t, v)
}

// toInt64 parses base-10 only: "08" is 8, never an octal literal.
func toInt64(v any) (any, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int, int8, int16, int32, uint8, uint16, uint32:
		return cast.ToInt64E(n)
	case uint, uint64:
		u := cast.ToUint64(n)
		if u > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d overflows", u)
		}
		return int64(u), nil
	case float32:
		return integralFloat(float64(n))
	case float64:
		return integralFloat(n)
	case json.Number:
		return parseIntString(n.String())
	case string:
		return parseIntString(n)
	}
	return nil, mismatch(TypeInteger, v)
}

func parseIntString(s string) (any, error) {
	s = strings.TrimSpace(s)
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("expected integer, got %q", s)
	}
	return integralFloat(f)
}

func integralFloat(f float64) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || f > math.MaxInt64 || f < math.MinInt64 {
		return nil, fmt.Errorf("expected integer, got %v", f)
	}
	return int64(f), nil
}

func toObject(v any) (any, error) {
	switch m := v.(type) {
	case map[string]any:
		return m, nil
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, nil
	case string:
		var out map[string]any
		if err := json.Unmarshal([]byte(m), &out); err != nil || out == nil {
			return nil, mismatch(TypeObject, v)
		}
		return out, nil
	}
	return nil, mismatch(TypeObject, v)
}

func toArray(v any) (any, error) {
	switch a := v.(type) {
	case []any:
		return a, nil
	case []string:
		out := make([]any, len(a))
		for i, s := range a {
			out[i] = s
		}
		return out, nil
	case string:
		var out []any
		if err := json.Unmarshal([]byte(a), &out); err != nil || out == nil {
			return nil, mismatch(TypeArray, v)
		}
		return out, nil
	}
	return nil, mismatch(TypeArray, v)
}
