package pipelineports

import (
	"context"
	"time"
)

// ToolCallRecord is the persisted audit entry of one tool call.
type ToolCallRecord struct {
	ToolName  string         `json:"toolName"`
	Arguments map[string]any `json:"arguments"`
	Status    string         `json:"status"`
	Result    any            `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Turn is one user message plus the assistant reply and its audit trail.
type Turn struct {
	ID               string           `json:"id"`
	UserMessage      string           `json:"userMessage"`
	AssistantMessage string           `json:"assistantMessage"`
	ToolCalls        []ToolCallRecord `json:"toolCalls,omitempty"`
	Confidence       float64          `json:"confidence"`
	CreatedAt        time.Time        `json:"createdAt"`
}

// Conversation is a read-only view of a session handed to the pipeline.
type Conversation struct {
	ID      string
	UserID  string
	Turns   []Turn // oldest first, bounded
	Summary string // rendered digest of evicted turns
}

// SessionStore holds per-conversation state.
// GetOrCreate, Append and Clear expect the caller to hold the session lock.
type SessionStore interface {
	WithLock(ctx context.Context, sessionID string, fn func(ctx context.Context) error) error
	GetOrCreate(ctx context.Context, sessionID, userID string) (Conversation, error)
	Append(ctx context.Context, sessionID string, turn Turn) error
	Clear(ctx context.Context, sessionID string) error
}
