package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PabloGalante/engigen-agent/internal/domain"
	"github.com/PabloGalante/engigen-agent/internal/metrics"
	"github.com/PabloGalante/engigen-agent/internal/observability"
)

// ErrorNotice is appended as a model message when a reply cannot be received.
const ErrorNotice = "**System Error**: Failed to receive response from the agent. Please check your connection or API Key."

const defaultStreamTimeout = 2 * time.Minute

var errSessionGone = errors.New("session removed while streaming")

// Service drives send-message operations against the SessionStore, one at a
// time across all sessions.
type Service struct {
	store    *SessionStore
	registry *AgentRegistry
	now      func() time.Time

	streamTimeout time.Duration

	busy     atomic.Bool
	cancelMu sync.Mutex
	cancel   context.CancelFunc
}

type Option func(*Service)

// WithStreamTimeout bounds every reply stream. Non-positive values are ignored.
func WithStreamTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.streamTimeout = d
		}
	}
}

// WithClock overrides time.Now for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
		s.store.now = now
	}
}

func NewService(store *SessionStore, registry *AgentRegistry, opts ...Option) *Service {
	s := &Service{
		store:         store,
		registry:      registry,
		now:           time.Now,
		streamTimeout: defaultStreamTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store exposes the underlying SessionStore for subscribers.
func (s *Service) Store() *SessionStore {
	return s.store
}

// Busy reports whether a send is in flight.
func (s *Service) Busy() bool {
	return s.busy.Load()
}

func (s *Service) CreateSession(ctx context.Context, d domain.EngineeringDomain) domain.ChatSession {
	sess := s.store.CreateSession(d)
	metrics.SessionsCreated.WithLabelValues(d.Key()).Inc()

	observability.LoggerFromContext(ctx).Info("session created",
		"session_id", sess.ID,
		"domain", d,
	)
	return sess
}

// SelectSession makes id active. It returns false for unknown ids.
func (s *Service) SelectSession(ctx context.Context, id domain.SessionID) bool {
	ok := s.store.SelectSession(id)
	if !ok {
		observability.LoggerFromContext(ctx).Info("select ignored, session not found", "session_id", id)
	}
	return ok
}

func (s *Service) ListSessions() []domain.ChatSession {
	return s.store.Sessions()
}

func (s *Service) GetSession(id domain.SessionID) (domain.ChatSession, bool) {
	return s.store.Session(id)
}

func (s *Service) ActiveSessionID() domain.SessionID {
	return s.store.ActiveSessionID()
}

// ClearAll aborts any in-flight stream, drops every session and every
// cached connector. Confirmation is the caller's job.
func (s *Service) ClearAll(ctx context.Context) {
	s.store.ClearAll()
	s.Cancel()
	dropped := s.registry.Len()
	s.registry.Reset()

	observability.LoggerFromContext(ctx).Info("all sessions cleared", "connectors_dropped", dropped)
}

// Cancel aborts the in-flight stream, if any. It reports whether there was one.
func (s *Service) Cancel() bool {
	s.cancelMu.Lock()
	defer s.cancelMu.Unlock()

	if s.cancel == nil {
		return false
	}
	s.cancel()
	return true
}

func (s *Service) setCancel(c context.CancelFunc) {
	s.cancelMu.Lock()
	s.cancel = c
	s.cancelMu.Unlock()
}

type SendMessageInput struct {
	// SessionID defaults to the active session when empty.
	SessionID domain.SessionID
	Text      string

	// OnMessage, when set, receives a copy of each message this send appends
	// or updates, right after the store accepted the change.
	OnMessage func(domain.Message)
}

func (in SendMessageInput) report(m domain.Message) {
	if in.OnMessage != nil {
		in.OnMessage(m)
	}
}

type SendMessageOutput struct {
	SessionID   domain.SessionID
	UserMessage domain.Message

	// ModelMessage is the streamed reply. It is nil when the stream never started.
	ModelMessage *domain.Message

	// ErrorMessage is set when the reply failed and the error notice was appended.
	ErrorMessage *domain.Message
}

// SendMessage appends the user's message, streams the model reply into a
// placeholder message and finalizes it. Remote failures do not surface as
// errors: they append ErrorNotice and are reported through ErrorMessage.
// Returned errors are ValidationError, ErrSessionNotFound or ErrBusy.
func (s *Service) SendMessage(ctx context.Context, in SendMessageInput) (*SendMessageOutput, error) {
	if strings.TrimSpace(in.Text) == "" {
		return nil, &domain.ValidationError{Err: domain.ErrEmptyMessage}
	}

	sessionID := in.SessionID
	if sessionID == "" {
		sessionID = s.store.ActiveSessionID()
		if sessionID == "" {
			return nil, &domain.ValidationError{Err: domain.ErrNoActiveSession}
		}
	}

	session, ok := s.store.Session(sessionID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}

	if !s.busy.CompareAndSwap(false, true) {
		return nil, domain.ErrBusy
	}
	defer s.busy.Store(false)

	log := observability.LoggerFromContext(ctx).With(
		"session_id", session.ID,
		"domain", session.Domain,
	)
	log.Info("sending message", "length", len(in.Text))

	userMsg := domain.Message{
		ID:        newMessageID(),
		Role:      domain.RoleUser,
		Content:   in.Text,
		Timestamp: s.now(),
	}
	if err := s.store.AppendMessage(session.ID, userMsg); err != nil {
		return nil, err
	}
	in.report(userMsg)
	metrics.MessagesSent.WithLabelValues(session.Domain.Key()).Inc()

	out := &SendMessageOutput{
		SessionID:   session.ID,
		UserMessage: userMsg,
	}

	s.settleStale(ctx, session.ID)

	streamCtx, cancel := context.WithTimeout(ctx, s.streamTimeout)
	defer cancel()
	s.setCancel(cancel)
	defer s.setCancel(nil)

	start := time.Now()
	err := s.stream(streamCtx, session, in, out)
	metrics.StreamDuration.Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		log.Info("send message completed",
			"reply_length", len(out.ModelMessage.Content),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	case errors.Is(err, errSessionGone) || !s.sessionExists(session.ID):
		// ClearAll cancels a blocked stream after dropping its session.
		log.Info("session removed mid-stream, dropping reply", "cause", err)
	default:
		metrics.StreamErrors.Inc()
		log.Error("reply stream failed", "error", err)

		notice := domain.Message{
			ID:        newMessageID(),
			Role:      domain.RoleModel,
			Content:   ErrorNotice,
			Timestamp: s.now(),
		}
		if err := s.store.AppendMessage(session.ID, notice); err != nil {
			log.Info("could not append error notice", "error", err)
		} else {
			out.ErrorMessage = &notice
			in.report(notice)
		}
	}

	return out, nil
}

// stream covers resolving the connector, the placeholder and the fragment loop.
func (s *Service) stream(ctx context.Context, session domain.ChatSession, in SendMessageInput, out *SendMessageOutput) error {
	connector, err := s.registry.GetOrCreate(ctx, session.ID, session.Domain)
	if err != nil {
		return err
	}

	placeholder := domain.Message{
		ID:          newMessageID(),
		Role:        domain.RoleModel,
		Content:     "",
		Timestamp:   s.now(),
		IsStreaming: true,
	}
	if err := s.store.AppendMessage(session.ID, placeholder); err != nil {
		return gone(err)
	}
	out.ModelMessage = &placeholder
	in.report(placeholder)

	var acc strings.Builder
	for frag, err := range connector.SendMessageStream(ctx, in.Text) {
		if err != nil {
			return err
		}
		metrics.StreamFragments.Inc()

		acc.WriteString(frag)
		content := acc.String()
		if err := s.store.UpdateMessage(session.ID, placeholder.ID, domain.MessagePatch{Content: &content}); err != nil {
			return gone(err)
		}
		out.ModelMessage.Content = content
		in.report(*out.ModelMessage)
	}

	done := false
	if err := s.store.UpdateMessage(session.ID, placeholder.ID, domain.MessagePatch{IsStreaming: &done}); err != nil {
		return gone(err)
	}
	out.ModelMessage.IsStreaming = false
	in.report(*out.ModelMessage)
	return nil
}

// settleStale finalizes a placeholder left streaming by an earlier failed
// send so the session never holds two streaming messages.
func (s *Service) settleStale(ctx context.Context, sessionID domain.SessionID) {
	id, ok := s.store.StreamingMessage(sessionID)
	if !ok {
		return
	}

	done := false
	if err := s.store.UpdateMessage(sessionID, id, domain.MessagePatch{IsStreaming: &done}); err != nil {
		observability.LoggerFromContext(ctx).Warn("could not settle stale placeholder",
			"session_id", sessionID,
			"message_id", id,
			"error", err,
		)
	}
}

func (s *Service) sessionExists(id domain.SessionID) bool {
	_, ok := s.store.Session(id)
	return ok
}

func gone(err error) error {
	if errors.Is(err, domain.ErrSessionNotFound) {
		return errSessionGone
	}
	return err
}
