package persistence

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/PabloGalante/engigen-agent/internal/domain"
)

// StateKey is the fixed key the session state is stored under.
const StateKey = "engigen_sessions"

// CurrentVersion is written with every save.
const CurrentVersion = 1

// record is the durable layout.
type record struct {
	Version  int                  `json:"version"`
	Sessions []domain.ChatSession `json:"sessions"`
}

// Encode serializes sessions in the current layout.
func Encode(sessions []domain.ChatSession) ([]byte, error) {
	if sessions == nil {
		sessions = []domain.ChatSession{}
	}
	return json.Marshal(record{Version: CurrentVersion, Sessions: sessions})
}

// Decode parses a stored blob. It accepts the current layout and the older
// unversioned layout, a bare JSON array of sessions.
func Decode(data []byte) ([]domain.ChatSession, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty state blob")
	}

	if trimmed[0] == '[' {
		sessions, err := decodeUnversioned(trimmed)
		if err != nil {
			return nil, fmt.Errorf("decoding unversioned state: %w", err)
		}
		return normalize(sessions)
	}

	var rec record
	if err := json.Unmarshal(trimmed, &rec); err != nil {
		return nil, fmt.Errorf("decoding state: %w", err)
	}
	if rec.Version < 1 || rec.Version > CurrentVersion {
		return nil, fmt.Errorf("unsupported state version %d", rec.Version)
	}
	return normalize(rec.Sessions)
}

func normalize(sessions []domain.ChatSession) ([]domain.ChatSession, error) {
	seen := make(map[domain.SessionID]bool, len(sessions))
	for i := range sessions {
		s := &sessions[i]
		if s.ID == "" {
			return nil, fmt.Errorf("session %d has no id", i)
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("duplicate session id %s", s.ID)
		}
		seen[s.ID] = true
		if s.Messages == nil {
			s.Messages = []domain.Message{}
		}
	}
	return sessions, nil
}

// The unversioned layout stores times as epoch milliseconds.
type unversionedMessage struct {
	ID          domain.MessageID `json:"id"`
	Role        domain.Role      `json:"role"`
	Content     string           `json:"content"`
	Timestamp   json.RawMessage  `json:"timestamp"`
	IsStreaming bool             `json:"isStreaming"`
}

type unversionedSession struct {
	ID        domain.SessionID         `json:"id"`
	Title     string                   `json:"title"`
	Domain    domain.EngineeringDomain `json:"domain"`
	Messages  []unversionedMessage     `json:"messages"`
	CreatedAt json.RawMessage          `json:"createdAt"`
}

func decodeUnversioned(data []byte) ([]domain.ChatSession, error) {
	var raw []unversionedSession
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	sessions := make([]domain.ChatSession, 0, len(raw))
	for _, rs := range raw {
		created, err := parseTime(rs.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("session %s createdAt: %w", rs.ID, err)
		}
		sess := domain.ChatSession{
			ID:        rs.ID,
			Title:     rs.Title,
			Domain:    rs.Domain,
			Messages:  make([]domain.Message, 0, len(rs.Messages)),
			CreatedAt: created,
		}
		for _, rm := range rs.Messages {
			ts, err := parseTime(rm.Timestamp)
			if err != nil {
				return nil, fmt.Errorf("message %s timestamp: %w", rm.ID, err)
			}
			sess.Messages = append(sess.Messages, domain.Message{
				ID:          rm.ID,
				Role:        rm.Role,
				Content:     rm.Content,
				Timestamp:   ts,
				IsStreaming: rm.IsStreaming,
			})
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

// parseTime accepts epoch milliseconds or an RFC 3339 string. A missing
// value is the zero time.
func parseTime(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, nil
	}
	if raw[0] == '"' {
		var t time.Time
		err := json.Unmarshal(raw, &t)
		return t, err
	}
	var ms float64
	if err := json.Unmarshal(raw, &ms); err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(int64(ms)).UTC(), nil
}
