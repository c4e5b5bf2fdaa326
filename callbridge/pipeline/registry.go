package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	ports "github.com/ZanzyTHEbar/callbridge/callbridge/pipeline/ports"
	"github.com/armon/go-radix"
	"github.com/xeipuuv/gojsonschema"
)

// ParamType is the declared JSON type of a tool parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
	TypeObject  ParamType = "object"
	TypeArray   ParamType = "array"
)

func (t ParamType) valid() bool {
	switch t {
	case TypeString, TypeInteger, TypeNumber, TypeBoolean, TypeObject, TypeArray:
		return true
	}
	return false
}

// ParamSpec declares one tool parameter.
type ParamSpec struct {
	Name        string    `yaml:"name" json:"name"`
	Type        ParamType `yaml:"type" json:"type"`
	Required    bool      `yaml:"required" json:"required"`
	Default     any       `yaml:"default,omitempty" json:"default,omitempty"`
	Description string    `yaml:"description,omitempty" json:"description,omitempty"`
	Enum        []any     `yaml:"enum,omitempty" json:"enum,omitempty"`
	Minimum     *float64  `yaml:"minimum,omitempty" json:"minimum,omitempty"`
	Maximum     *float64  `yaml:"maximum,omitempty" json:"maximum,omitempty"`
}

// HasDefault reports whether an absent argument can be filled in.
func (p ParamSpec) HasDefault() bool { return p.Default != nil }

// ToolEntry is one row of the registry table: a logical tool name bound
// to a backend path.
type ToolEntry struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Category    string      `yaml:"category"`
	Binding     string      `yaml:"binding"`
	Summary     string      `yaml:"summary,omitempty"`
	Params      []ParamSpec `yaml:"params"`
}

// ToolDefinition is an immutable registry entry with its resolved callable.
type ToolDefinition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Category    string      `json:"category"`
	Binding     string      `json:"binding"`
	Summary     string      `json:"summary,omitempty"`
	Params      []ParamSpec `json:"params"`

	fn          ports.BackendFunc
	schema      []byte
	constraints *gojsonschema.Schema
}

// Param returns the declaration of a named parameter.
func (d *ToolDefinition) Param(name string) (ParamSpec, bool) {
	i := slices.IndexFunc(d.Params, func(p ParamSpec) bool { return p.Name == name })
	if i < 0 {
		return ParamSpec{}, false
	}
	return d.Params[i], true
}

// Schema returns the JSON schema of the tool arguments.
func (d *ToolDefinition) Schema() []byte { return d.schema }

// Invoke calls the bound backend operation.
func (d *ToolDefinition) Invoke(ctx context.Context, args map[string]any) (any, error) {
	return d.fn(ctx, args)
}

// Registry maps logical tool names to definitions. It is read-only after
// NewRegistry returns and safe for concurrent use.
type Registry struct {
	tree *radix.Tree
}

// NewRegistry validates entries and resolves every binding against backend.
// Duplicate names and unresolvable bindings are fatal.
func NewRegistry(entries []ToolEntry, backend ports.Backend) (*Registry, error) {
	tree := radix.New()
	for _, e := range entries {
		def, err := newDefinition(e, backend)
		if err != nil {
			return nil, err
		}
		if _, exists := tree.Get(def.Name); exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTool, def.Name)
		}
		tree.Insert(def.Name, def)
	}
	return &Registry{tree: tree}, nil
}

func newDefinition(e ToolEntry, backend ports.Backend) (*ToolDefinition, error) {
	if e.Name == "" {
		return nil, fmt.Errorf("%w: empty tool name", ErrInvalidDefinition)
	}
	fn, ok := backend.Resolve(e.Binding)
	if !ok {
		return nil, fmt.Errorf("%w: %s -> %q", ErrUnboundTool, e.Name, e.Binding)
	}

	params := make([]ParamSpec, 0, len(e.Params))
	seen := make(map[string]bool, len(e.Params))
	for _, p := range e.Params {
		if p.Name == "" || seen[p.Name] {
			return nil, fmt.Errorf("%w: %s has an empty or repeated parameter %q", ErrInvalidDefinition, e.Name, p.Name)
		}
		seen[p.Name] = true
		if !p.Type.valid() {
			return nil, fmt.Errorf("%w: %s.%s has unknown type %q", ErrInvalidDefinition, e.Name, p.Name, p.Type)
		}
		if p.Default != nil {
			v, err := coerce(p.Type, p.Default)
			if err != nil {
				return nil, fmt.Errorf("%w: %s.%s default: %v", ErrInvalidDefinition, e.Name, p.Name, err)
			}
			p.Default = v
		}
		params = append(params, p)
	}

	def := &ToolDefinition{
		Name:        e.Name,
		Description: e.Description,
		Category:    e.Category,
		Binding:     e.Binding,
		Summary:     e.Summary,
		Params:      params,
		fn:          fn,
	}
	schema, err := buildSchema(def)
	if err != nil {
		return nil, fmt.Errorf("%w: %s schema: %v", ErrInvalidDefinition, e.Name, err)
	}
	def.schema = schema
	if hasConstraints(def) {
		def.constraints, err = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schema))
		if err != nil {
			return nil, fmt.Errorf("%w: %s schema: %v", ErrInvalidDefinition, e.Name, err)
		}
	}
	return def, nil
}

func buildSchema(def *ToolDefinition) ([]byte, error) {
	props := make(map[string]any, len(def.Params))
	required := []string{}
	for _, p := range def.Params {
		prop := map[string]any{"type": string(p.Type)}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if p.Minimum != nil {
			prop["minimum"] = *p.Minimum
		}
		if p.Maximum != nil {
			prop["maximum"] = *p.Maximum
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return json.Marshal(map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	})
}

// Lookup returns the definition for name.
func (r *Registry) Lookup(name string) (*ToolDefinition, error) {
	v, ok := r.tree.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return v.(*ToolDefinition), nil
}

// All returns every definition in lexical name order.
func (r *Registry) All() []*ToolDefinition {
	out := make([]*ToolDefinition, 0, r.tree.Len())
	r.tree.Walk(func(_ string, v any) bool {
		out = append(out, v.(*ToolDefinition))
		return false
	})
	return out
}

// ByPrefix returns the definitions whose name starts with prefix.
func (r *Registry) ByPrefix(prefix string) []*ToolDefinition {
	var out []*ToolDefinition
	r.tree.WalkPrefix(prefix, func(_ string, v any) bool {
		out = append(out, v.(*ToolDefinition))
		return false
	})
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int { return r.tree.Len() }
