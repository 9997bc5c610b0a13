package httpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/PabloGalante/engigen-agent/internal/app/conversation"
	"github.com/PabloGalante/engigen-agent/internal/domain"
	"github.com/PabloGalante/engigen-agent/internal/observability"
)

type doneEvent struct {
	SessionID string `json:"session_id"`
	Failed    bool   `json:"failed"`
}

// eventWriter writes server-sent events, committing the response headers on
// the first event so earlier failures can still pick a status code.
type eventWriter struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	started bool
	broken  bool
}

func newEventWriter(w http.ResponseWriter) *eventWriter {
	return &eventWriter{w: w, rc: http.NewResponseController(w)}
}

func (e *eventWriter) send(event string, v any) error {
	if e.broken {
		return nil
	}
	if !e.started {
		h := e.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		e.w.WriteHeader(http.StatusOK)
		e.started = true
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		// Client is gone. The send carries on without it.
		e.broken = true
		return err
	}
	if err := e.rc.Flush(); err != nil {
		e.broken = true
		return err
	}
	return nil
}

// streamSendMessage runs the send on the request goroutine and forwards every
// message change of that send as a "message" event, then a final "done".
func (s *Server) streamSendMessage(ctx context.Context, w http.ResponseWriter, in conversation.SendMessageInput) {
	log := observability.LoggerFromContext(ctx)
	ev := newEventWriter(w)

	in.OnMessage = func(m domain.Message) {
		if err := ev.send("message", toMessageResponse(m)); err != nil {
			log.Debug("dropping event, client disconnected", "error", err)
		}
	}

	out, err := s.svc.SendMessage(ctx, in)
	if err != nil {
		// Validation, busy and not-found errors precede any event.
		if !ev.started {
			writeSendError(ctx, w, err)
			return
		}
		log.Error("send failed after streaming began", "error", err)
		return
	}

	_ = ev.send("done", doneEvent{
		SessionID: string(out.SessionID),
		Failed:    out.ErrorMessage != nil,
	})
}
