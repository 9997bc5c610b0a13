package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/PabloGalante/engigen-agent/internal/app/conversation"
	"github.com/PabloGalante/engigen-agent/internal/domain"
	"github.com/PabloGalante/engigen-agent/internal/observability"
)

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type domainResponse struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

type createSessionRequest struct {
	Domain string `json:"domain"`
}

type sessionResponse struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	Domain       string            `json:"domain"`
	CreatedAt    time.Time         `json:"created_at"`
	MessageCount int               `json:"message_count"`
	Messages     []messageResponse `json:"messages,omitempty"`
}

type listSessionsResponse struct {
	Sessions        []sessionResponse `json:"sessions"`
	ActiveSessionID string            `json:"active_session_id"`
	Busy            bool              `json:"busy"`
}

type messageResponse struct {
	ID          string    `json:"id"`
	Role        string    `json:"role"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
	IsStreaming bool      `json:"is_streaming"`
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

type sendMessageResponse struct {
	UserMessage  messageResponse  `json:"user_message"`
	ModelMessage *messageResponse `json:"model_message,omitempty"`
}

// ─────────────────────────────────────────────
// Concrete handlers
// ─────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.pinger.Ping(ctx); err != nil {
			observability.LoggerFromContext(r.Context()).Warn("storage unreachable", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"error":  "storage unreachable",
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListDomains(w http.ResponseWriter, _ *http.Request) {
	all := domain.AllDomains()
	out := make([]domainResponse, 0, len(all))
	for _, d := range all {
		out = append(out, domainResponse{Key: d.Key(), Label: string(d)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	sessions := s.svc.ListSessions()
	resp := listSessionsResponse{
		Sessions:        make([]sessionResponse, 0, len(sessions)),
		ActiveSessionID: string(s.svc.ActiveSessionID()),
		Busy:            s.svc.Busy(),
	}
	for _, sess := range sessions {
		resp.Sessions = append(resp.Sessions, toSessionResponse(sess, false))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "invalid JSON body")
			return
		}
	}

	d := domain.DomainSoftware
	if req.Domain != "" {
		parsed, ok := domain.ParseEngineeringDomain(req.Domain)
		if !ok {
			badRequest(w, "unknown domain")
			return
		}
		d = parsed
	}

	sess := s.svc.CreateSession(r.Context(), d)
	writeJSON(w, http.StatusCreated, toSessionResponse(sess, true))
}

func (s *Server) handleClearSessions(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("confirm") != "true" {
		badRequest(w, "clearing all sessions requires confirm=true")
		return
	}
	s.svc.ClearAll(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.svc.GetSession(sessionIDParam(r))
	if !ok {
		notFound(w, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(sess, true))
}

func (s *Server) handleSelectSession(w http.ResponseWriter, r *http.Request) {
	id := sessionIDParam(r)
	if !s.svc.SelectSession(r.Context(), id) {
		notFound(w, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"active_session_id": string(id)})
}

func (s *Server) handleCancel(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": s.svc.Cancel()})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	in := conversation.SendMessageInput{
		SessionID: sessionIDParam(r),
		Text:      req.Text,
	}

	// The reply keeps streaming, and is persisted, if the client goes away.
	ctx := context.WithoutCancel(r.Context())

	if wantsEventStream(r) {
		s.streamSendMessage(ctx, w, in)
		return
	}

	out, err := s.svc.SendMessage(ctx, in)
	if err != nil {
		writeSendError(r.Context(), w, err)
		return
	}

	resp := sendMessageResponse{UserMessage: toMessageResponse(out.UserMessage)}
	switch {
	case out.ErrorMessage != nil:
		m := toMessageResponse(*out.ErrorMessage)
		resp.ModelMessage = &m
	case out.ModelMessage != nil:
		m := toMessageResponse(*out.ModelMessage)
		resp.ModelMessage = &m
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeSendError maps SendMessage errors that happen before anything was
// written. Validation failures are silent no-ops for the caller.
func writeSendError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case domain.IsValidation(err):
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, domain.ErrSessionNotFound):
		notFound(w, "session not found")
	case errors.Is(err, domain.ErrBusy):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "a reply is still streaming"})
	default:
		internalError(ctx, w, err)
	}
}

// ─────────────────────────────────────────────
// Conversation Helpers
// ─────────────────────────────────────────────

func sessionIDParam(r *http.Request) domain.SessionID {
	return domain.SessionID(chi.URLParam(r, "id"))
}

func toSessionResponse(s domain.ChatSession, withMessages bool) sessionResponse {
	resp := sessionResponse{
		ID:           string(s.ID),
		Title:        s.Title,
		Domain:       string(s.Domain),
		CreatedAt:    s.CreatedAt,
		MessageCount: len(s.Messages),
	}
	if withMessages {
		resp.Messages = make([]messageResponse, 0, len(s.Messages))
		for _, m := range s.Messages {
			resp.Messages = append(resp.Messages, toMessageResponse(m))
		}
	}
	return resp
}

func toMessageResponse(m domain.Message) messageResponse {
	return messageResponse{
		ID:          string(m.ID),
		Role:        string(m.Role),
		Content:     m.Content,
		Timestamp:   m.Timestamp,
		IsStreaming: m.IsStreaming,
	}
}

func wantsEventStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

// ─────────────────────────────────────────────
// HTTP Helpers
// ─────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error": msg,
	})
}

func notFound(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": msg,
	})
}

func internalError(ctx context.Context, w http.ResponseWriter, err error) {
	observability.LoggerFromContext(ctx).Error("request failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error": "internal server error",
	})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{
		"error": "method not allowed",
	})
}
