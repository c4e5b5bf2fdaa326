package pipelineports

import "context"

// BackendFunc executes one backend operation with validated arguments.
type BackendFunc func(ctx context.Context, args map[string]any) (any, error)

// Backend resolves binding paths such as "backend.getBillHistory" to callables.
type Backend interface {
	Resolve(path string) (BackendFunc, bool)
}
