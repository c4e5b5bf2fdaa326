package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	internal "github.com/ZanzyTHEbar/callbridge/callbridge"
	"github.com/ZanzyTHEbar/callbridge/callbridge/pipeline"
	"github.com/ZanzyTHEbar/callbridge/callbridge/pipeline/adapters"
	"github.com/ZanzyTHEbar/callbridge/callbridge/session"
	"github.com/go-chi/chi/v5/middleware"
)

const maxBodyBytes = 64 << 10

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	if s.deps.Limiter != nil {
		release, err := s.deps.Limiter.Acquire(r.Context(), strings.TrimSpace(req.UserID))
		if err != nil {
			var rle *adapters.RateLimitError
			if errors.As(err, &rle) {
				w.Header().Set("Retry-After", "1")
				s.writeError(w, http.StatusTooManyRequests, "rate_limited", rle.Error())
				return
			}
			s.writeError(w, http.StatusServiceUnavailable, "unavailable", err.Error())
			return
		}
		defer release()
	}

	res, err := s.deps.Turns.HandleTurn(r.Context(), pipeline.TurnRequest{
		Message:   req.Message,
		UserID:    req.UserID,
		SessionID: req.SessionID,
	})
	if err != nil {
		s.writeTurnError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, NewChatResponse(res))
}

func (s *Server) writeTurnError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, pipeline.ErrInvalidRequest):
		s.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, session.ErrSessionOwnership):
		s.writeError(w, http.StatusForbidden, "forbidden", "session belongs to another user")
	case errors.Is(err, pipeline.ErrTurnCancelled), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.writeError(w, http.StatusServiceUnavailable, "cancelled", err.Error())
	default:
		s.logger.Error().Err(err).Str("request_id", middleware.GetReqID(r.Context())).Msg("turn failed")
		s.writeError(w, http.StatusInternalServerError, "internal_error", "chat turn failed")
	}
}

// handleClearSession accepts the session id as JSON body or session_id query.
func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	req := ClearRequest{
		SessionID: r.URL.Query().Get("session_id"),
		UserID:    r.URL.Query().Get("user_id"),
	}
	if req.SessionID == "" {
		if err := decodeBody(r, &req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
			return
		}
	}
	req.SessionID = strings.TrimSpace(req.SessionID)
	if req.SessionID == "" {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "sessionId is required")
		return
	}

	err := s.deps.Sessions.WithLock(r.Context(), req.SessionID, func(ctx context.Context) error {
		sess, err := s.deps.Sessions.Get(ctx, req.SessionID)
		if err != nil {
			return err
		}
		if req.UserID != "" && sess.UserID != req.UserID {
			return session.ErrSessionOwnership
		}
		return s.deps.Sessions.Clear(ctx, req.SessionID)
	})
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		s.writeError(w, http.StatusNotFound, "not_found", "session not found")
		return
	case errors.Is(err, session.ErrSessionOwnership):
		s.writeError(w, http.StatusForbidden, "forbidden", "session belongs to another user")
		return
	case err != nil:
		s.logger.Error().Err(err).Str("session_id", req.SessionID).Msg("failed to clear session")
		s.writeError(w, http.StatusInternalServerError, "internal_error", "failed to clear session")
		return
	}

	s.logger.Info().Str("session_id", req.SessionID).Msg("session cleared")
	s.writeJSON(w, http.StatusOK, ClearResponse{
		Success:   true,
		Message:   "Oturum geçmişi başarıyla temizlendi",
		SessionID: req.SessionID,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	uptime := time.Since(s.startTime)
	resp := StatusResponse{
		Status:         "running",
		Version:        internal.Version,
		Uptime:         uptime.Round(time.Second).String(),
		UptimeSeconds:  int64(uptime.Seconds()),
		RegistrySize:   s.deps.Turns.Registry().Len(),
		SessionBackend: s.deps.Sessions.Backend(),
		Timestamp:      time.Now().UTC(),
	}
	if s.deps.Health != nil {
		resp.Inference = s.deps.Health.Health()
		if resp.Inference.BreakerOpen {
			resp.Status = "degraded"
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleListTools lists registered tools, optionally filtered by
// ?category= or ?prefix=.
func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	registry := s.deps.Turns.Registry()
	defs := registry.All()
	if prefix := r.URL.Query().Get("prefix"); prefix != "" {
		defs = registry.ByPrefix(prefix)
	}
	category := r.URL.Query().Get("category")

	resp := ToolsResponse{Tools: []ToolInfo{}, Categories: map[string][]string{}}
	for _, def := range defs {
		if category != "" && def.Category != category {
			continue
		}
		resp.Tools = append(resp.Tools, ToolInfo{
			Name:        def.Name,
			Description: def.Description,
			Category:    def.Category,
			Binding:     def.Binding,
			Schema:      json.RawMessage(def.Schema()),
		})
		resp.Categories[def.Category] = append(resp.Categories[def.Category], def.Name)
	}
	for _, names := range resp.Categories {
		slices.Sort(names)
	}
	resp.Count = len(resp.Tools)
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return err
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, msg string) {
	s.writeJSON(w, status, ErrorResponse{Success: false, Error: code, Message: msg})
}
