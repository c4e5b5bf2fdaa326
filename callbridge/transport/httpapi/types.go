package httpapi

import (
	"encoding/json"
	"time"

	"github.com/ZanzyTHEbar/callbridge/callbridge/inference"
	"github.com/ZanzyTHEbar/callbridge/callbridge/pipeline"
)

// ChatRequest is the inbound body of POST /api/v1/chat.
type ChatRequest struct {
	Message   string `json:"message"`
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId,omitempty"`
}

// ChatResponse is the outbound body of POST /api/v1/chat.
type ChatResponse struct {
	ReplyText   string                `json:"replyText"`
	ToolCalls   []ToolCallDTO         `json:"toolCalls"`
	Confidence  float64               `json:"confidence"`
	SessionID   string                `json:"sessionId"`
	State       pipeline.State        `json:"state"`
	FailureKind pipeline.FailureKind  `json:"failureKind,omitempty"`
	Diagnostics []pipeline.Diagnostic `json:"diagnostics,omitempty"`
}

// ToolCallDTO is the audit entry of one tool call. Result and Error are
// always present; exactly one of them is non-null once the call is terminal.
type ToolCallDTO struct {
	ToolName  string         `json:"toolName"`
	Arguments map[string]any `json:"arguments"`
	Status    string         `json:"status"`
	Result    any            `json:"result"`
	Error     *string        `json:"error"`
}

func toolCallDTOs(calls []*pipeline.ToolCall) []ToolCallDTO {
	out := make([]ToolCallDTO, 0, len(calls))
	for _, c := range calls {
		dto := ToolCallDTO{
			ToolName:  c.ToolName,
			Arguments: c.Arguments,
			Status:    string(c.Status),
			Result:    c.Result,
		}
		if dto.Arguments == nil {
			dto.Arguments = map[string]any{}
		}
		if c.Error != nil {
			msg := c.Error.Error()
			dto.Error = &msg
		}
		out = append(out, dto)
	}
	return out
}

// NewChatResponse converts a turn result into its wire form.
func NewChatResponse(res *pipeline.Result) ChatResponse {
	return ChatResponse{
		ReplyText:   res.ReplyText,
		ToolCalls:   toolCallDTOs(res.ToolCalls),
		Confidence:  res.Confidence,
		SessionID:   res.SessionID,
		State:       res.State,
		FailureKind: res.FailureKind,
		Diagnostics: res.Diagnostics,
	}
}

// ClearRequest names the session to clear. UserID, when set, must own it.
type ClearRequest struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId,omitempty"`
}

type ClearResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}

// StatusResponse is the body of GET /api/v1/system/status.
type StatusResponse struct {
	Status         string           `json:"status"`
	Version        string           `json:"version"`
	Uptime         string           `json:"uptime"`
	UptimeSeconds  int64            `json:"uptimeSeconds"`
	Inference      inference.Health `json:"inference"`
	RegistrySize   int              `json:"registrySize"`
	SessionBackend string           `json:"sessionBackend"`
	Timestamp      time.Time        `json:"timestamp"`
}

// ToolInfo describes one registered tool.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Binding     string          `json:"binding"`
	Schema      json.RawMessage `json:"schema"`
}

type ToolsResponse struct {
	Tools      []ToolInfo          `json:"tools"`
	Categories map[string][]string `json:"categories"`
	Count      int                 `json:"count"`
}

// ErrorResponse is written for every non-2xx reply.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}
