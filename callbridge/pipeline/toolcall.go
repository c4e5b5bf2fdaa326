package pipeline

import (
	"fmt"
	"reflect"

	ports "github.com/ZanzyTHEbar/callbridge/callbridge/pipeline/ports"
)

// CallStatus is the lifecycle position of a ToolCall.
type CallStatus string

const (
	StatusPending   CallStatus = "pending"
	StatusValidated CallStatus = "validated"
	StatusExecuting CallStatus = "executing"
	StatusSucceeded CallStatus = "succeeded"
	StatusFailed    CallStatus = "failed"
)

// ToolCall is one candidate invocation extracted from model output.
// Fields are only mutated through the transition methods below.
type ToolCall struct {
	ToolName  string         `json:"toolName"`
	Arguments map[string]any `json:"arguments"`
	ArgOrder  []string       `json:"-"`
	Status    CallStatus     `json:"status"`
	Result    any            `json:"result,omitempty"`
	Error     *CallError     `json:"error,omitempty"`

	def *ToolDefinition
}

// NewToolCall creates a pending call from a parsed fragment.
func NewToolCall(f ToolFragment) *ToolCall {
	args := make(map[string]any, len(f.Args))
	for k, v := range f.Args {
		args[k] = v
	}
	return &ToolCall{
		ToolName:  f.Name,
		Arguments: args,
		ArgOrder:  append([]string(nil), f.ArgOrder...),
		Status:    StatusPending,
	}
}

// Definition returns the registry entry bound during Validate.
func (c *ToolCall) Definition() *ToolDefinition { return c.def }

// Validate moves a pending call to validated with canonical arguments.
// A nil definition or a name mismatch is refused, so an unregistered
// name can never reach validated.
func (c *ToolCall) Validate(def *ToolDefinition, args map[string]any) error {
	if c.Status != StatusPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, StatusValidated)
	}
	if def == nil || def.Name != c.ToolName {
		return fmt.Errorf("%w: %q is not a registered tool", ErrInvalidTransition, c.ToolName)
	}
	c.def = def
	c.Arguments = args
	c.Status = StatusValidated
	return nil
}

// Start marks a validated call as executing.
func (c *ToolCall) Start() error {
	if c.Status != StatusValidated {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, StatusExecuting)
	}
	c.Status = StatusExecuting
	return nil
}

// Succeed records the backend result. A nil result is stored as an empty
// object so a succeeded call always carries one.
func (c *ToolCall) Succeed(result any) error {
	if c.Status != StatusExecuting {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, StatusSucceeded)
	}
	if isNil(result) {
		result = map[string]any{}
	}
	c.Result = result
	c.Error = nil
	c.Status = StatusSucceeded
	return nil
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

// Fail records a failure. Any non-terminal call may fail.
func (c *ToolCall) Fail(err *CallError) error {
	if c.Terminal() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, StatusFailed)
	}
	c.Result = nil
	c.Error = err
	c.Status = StatusFailed
	return nil
}

// Terminal reports whether the call reached succeeded or failed.
func (c *ToolCall) Terminal() bool {
	return c.Status == StatusSucceeded || c.Status == StatusFailed
}

// Record converts the call into its persisted audit form.
func (c *ToolCall) Record() ports.ToolCallRecord {
	rec := ports.ToolCallRecord{
		ToolName:  c.ToolName,
		Arguments: c.Arguments,
		Status:    string(c.Status),
		Result:    c.Result,
	}
	if c.Error != nil {
		rec.Error = c.Error.Error()
	}
	return rec
}
