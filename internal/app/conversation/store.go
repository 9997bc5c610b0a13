package conversation

import (
	"strings"
	"sync"
	"time"

	"github.com/PabloGalante/engigen-agent/internal/domain"
)

const titleMaxRunes = 30

// ChangeKind names the mutation a Change describes.
type ChangeKind string

const (
	ChangeSessionCreated  ChangeKind = "session_created"
	ChangeSessionSelected ChangeKind = "session_selected"
	ChangeMessageAppended ChangeKind = "message_appended"
	ChangeMessageUpdated  ChangeKind = "message_updated"
	ChangeCleared         ChangeKind = "cleared"
	ChangeRestored        ChangeKind = "restored"
)

// Change is delivered to listeners after every successful mutation.
// Message is a copy of the affected message, when there is one.
type Change struct {
	Kind      ChangeKind
	SessionID domain.SessionID
	Message   *domain.Message
}

// Listener observes store mutations. It runs synchronously on the mutating
// goroutine, after the store lock is released.
type Listener func(Change)

// SessionStore owns the ordered session collection and the active pointer.
// The newest session comes first. Readers only ever get copies.
type SessionStore struct {
	mu       sync.RWMutex
	sessions []*domain.ChatSession
	activeID domain.SessionID
	now      func() time.Time

	lmu       sync.RWMutex
	listeners map[int]Listener
	nextLID   int
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		now:       time.Now,
		listeners: make(map[int]Listener),
	}
}

// Subscribe registers l and returns a function that removes it.
func (s *SessionStore) Subscribe(l Listener) (unsubscribe func()) {
	s.lmu.Lock()
	id := s.nextLID
	s.nextLID++
	s.listeners[id] = l
	s.lmu.Unlock()

	return func() {
		s.lmu.Lock()
		delete(s.listeners, id)
		s.lmu.Unlock()
	}
}

func (s *SessionStore) emit(c Change) {
	s.lmu.RLock()
	ls := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		ls = append(ls, l)
	}
	s.lmu.RUnlock()

	for _, l := range ls {
		l(c)
	}
}

// CreateSession puts a new empty session at the front and makes it active.
func (s *SessionStore) CreateSession(d domain.EngineeringDomain) domain.ChatSession {
	s.mu.Lock()
	sess := &domain.ChatSession{
		ID:        newSessionID(),
		Title:     domain.DefaultTitle(d),
		Domain:    d,
		Messages:  []domain.Message{},
		CreatedAt: s.now(),
	}
	s.sessions = append([]*domain.ChatSession{sess}, s.sessions...)
	s.activeID = sess.ID
	out := sess.Clone()
	s.mu.Unlock()

	s.emit(Change{Kind: ChangeSessionCreated, SessionID: out.ID})
	return out
}

// SelectSession makes id active. Unknown ids are a no-op and return false.
func (s *SessionStore) SelectSession(id domain.SessionID) bool {
	s.mu.Lock()
	if s.find(id) == nil {
		s.mu.Unlock()
		return false
	}
	s.activeID = id
	s.mu.Unlock()

	s.emit(Change{Kind: ChangeSessionSelected, SessionID: id})
	return true
}

// AppendMessage appends msg to the session. The first user message of a
// session also rewrites its title. A deleted session yields ErrSessionNotFound
// and nothing changes.
func (s *SessionStore) AppendMessage(sessionID domain.SessionID, msg domain.Message) error {
	s.mu.Lock()
	sess := s.find(sessionID)
	if sess == nil {
		s.mu.Unlock()
		return domain.ErrSessionNotFound
	}
	if msg.IsStreaming && streamingIndex(sess) >= 0 {
		s.mu.Unlock()
		return domain.ErrAlreadyStreaming
	}

	if msg.Role == domain.RoleUser && !hasUserMessage(sess) {
		sess.Title = TitleFrom(msg.Content)
	}
	sess.Messages = append(sess.Messages, msg)
	s.mu.Unlock()

	s.emit(Change{Kind: ChangeMessageAppended, SessionID: sessionID, Message: &msg})
	return nil
}

// UpdateMessage applies patch to exactly one message. Content can only
// change while the message is streaming.
func (s *SessionStore) UpdateMessage(sessionID domain.SessionID, messageID domain.MessageID, patch domain.MessagePatch) error {
	s.mu.Lock()
	sess := s.find(sessionID)
	if sess == nil {
		s.mu.Unlock()
		return domain.ErrSessionNotFound
	}

	idx := -1
	for i := range sess.Messages {
		if sess.Messages[i].ID == messageID {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return domain.ErrMessageNotFound
	}

	m := &sess.Messages[idx]
	if patch.Content != nil && !m.IsStreaming && *patch.Content != m.Content {
		s.mu.Unlock()
		return domain.ErrMessageFinalized
	}
	if patch.IsStreaming != nil && *patch.IsStreaming && !m.IsStreaming {
		// Streaming never restarts.
		s.mu.Unlock()
		return domain.ErrMessageFinalized
	}

	if patch.Content != nil {
		m.Content = *patch.Content
	}
	if patch.IsStreaming != nil {
		m.IsStreaming = *patch.IsStreaming
	}
	out := *m
	s.mu.Unlock()

	s.emit(Change{Kind: ChangeMessageUpdated, SessionID: sessionID, Message: &out})
	return nil
}

// ClearAll drops every session and unsets the active pointer.
func (s *SessionStore) ClearAll() {
	s.mu.Lock()
	s.sessions = nil
	s.activeID = ""
	s.mu.Unlock()

	s.emit(Change{Kind: ChangeCleared})
}

// Restore replaces the collection with rehydrated sessions. The first one
// becomes active.
func (s *SessionStore) Restore(sessions []domain.ChatSession) {
	s.mu.Lock()
	s.sessions = make([]*domain.ChatSession, 0, len(sessions))
	for _, sess := range sessions {
		c := sess.Clone()
		s.sessions = append(s.sessions, &c)
	}
	s.activeID = ""
	if len(s.sessions) > 0 {
		s.activeID = s.sessions[0].ID
	}
	s.mu.Unlock()

	s.emit(Change{Kind: ChangeRestored})
}

// Sessions returns a deep copy of the collection, newest first.
func (s *SessionStore) Sessions() []domain.ChatSession {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ChatSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Clone())
	}
	return out
}

// Session returns a copy of one session.
func (s *SessionStore) Session(id domain.SessionID) (domain.ChatSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess := s.find(id)
	if sess == nil {
		return domain.ChatSession{}, false
	}
	return sess.Clone(), true
}

func (s *SessionStore) ActiveSessionID() domain.SessionID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// ActiveSession returns a copy of the active session, if any.
func (s *SessionStore) ActiveSession() (domain.ChatSession, bool) {
	return s.Session(s.ActiveSessionID())
}

// StreamingMessage returns the id of the session's streaming message, if any.
func (s *SessionStore) StreamingMessage(sessionID domain.SessionID) (domain.MessageID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess := s.find(sessionID)
	if sess == nil {
		return "", false
	}
	if i := streamingIndex(sess); i >= 0 {
		return sess.Messages[i].ID, true
	}
	return "", false
}

// find must be called with mu held.
func (s *SessionStore) find(id domain.SessionID) *domain.ChatSession {
	if id == "" {
		return nil
	}
	for _, sess := range s.sessions {
		if sess.ID == id {
			return sess
		}
	}
	return nil
}

func streamingIndex(sess *domain.ChatSession) int {
	for i := range sess.Messages {
		if sess.Messages[i].IsStreaming {
			return i
		}
	}
	return -1
}

func hasUserMessage(sess *domain.ChatSession) bool {
	for i := range sess.Messages {
		if sess.Messages[i].Role == domain.RoleUser {
			return true
		}
	}
	return false
}

// TitleFrom builds a session title from the first user message: at most 30
// runes on a single line, followed by "...".
func TitleFrom(content string) string {
	line := strings.Join(strings.Fields(content), " ")
	runes := []rune(line)
	if len(runes) > titleMaxRunes {
		runes = runes[:titleMaxRunes]
	}
	return string(runes) + "..."
}
