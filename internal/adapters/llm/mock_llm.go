package llm

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"
	"time"

	"github.com/PabloGalante/engigen-agent/internal/domain"
)

// MockFactory builds scripted connectors. It is used for local development
// without credentials and as the model stand-in in tests.
type MockFactory struct {
	mu      sync.Mutex
	created []MockCreation

	// Reply produces the fragments for one turn. Defaults to an echo reply.
	Reply func(d domain.EngineeringDomain, text string) []string
	// FailAfter, when >= 0, fails every stream after that many fragments.
	FailAfter int
	// Delay is slept before each fragment.
	Delay time.Duration
	// CreateErr makes NewConnector fail.
	CreateErr error
}

// MockCreation records one NewConnector call.
type MockCreation struct {
	SessionID domain.SessionID
	Domain    domain.EngineeringDomain
}

var ErrMockFailure = errors.New("mock model failure")

func NewMockFactory() *MockFactory {
	return &MockFactory{FailAfter: -1}
}

// Scripted returns a factory whose connectors always reply with fragments.
func Scripted(fragments ...string) *MockFactory {
	f := NewMockFactory()
	f.Reply = func(domain.EngineeringDomain, string) []string { return fragments }
	return f
}

// Created lists the connectors built so far.
func (f *MockFactory) Created() []MockCreation {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]MockCreation, len(f.created))
	copy(out, f.created)
	return out
}

func (f *MockFactory) NewConnector(_ context.Context, sessionID domain.SessionID, d domain.EngineeringDomain) (domain.Connector, error) {
	if f.CreateErr != nil {
		return nil, &domain.RemoteServiceError{Op: "create chat", Err: f.CreateErr}
	}

	f.mu.Lock()
	f.created = append(f.created, MockCreation{SessionID: sessionID, Domain: d})
	f.mu.Unlock()

	return &mockConnector{factory: f, domain: d}, nil
}

type mockConnector struct {
	factory *MockFactory
	domain  domain.EngineeringDomain
	turns   int
}

func (c *mockConnector) SendMessageStream(ctx context.Context, text string) iter.Seq2[string, error] {
	c.turns++
	fragments := c.reply(text)
	failAfter := c.factory.FailAfter
	delay := c.factory.Delay

	return func(yield func(string, error) bool) {
		for i, frag := range fragments {
			if failAfter >= 0 && i >= failAfter {
				break
			}
			if delay > 0 {
				select {
				case <-ctx.Done():
					yield("", &domain.RemoteServiceError{Op: "stream", Err: ctx.Err()})
					return
				case <-time.After(delay):
				}
			}
			if err := ctx.Err(); err != nil {
				yield("", &domain.RemoteServiceError{Op: "stream", Err: err})
				return
			}
			if !yield(frag, nil) {
				return
			}
		}
		if failAfter >= 0 {
			yield("", &domain.RemoteServiceError{Op: "stream", Err: ErrMockFailure})
		}
	}
}

func (c *mockConnector) reply(text string) []string {
	if c.factory.Reply != nil {
		return c.factory.Reply(c.domain, text)
	}
	msg := fmt.Sprintf("[%s, turn %d] You said: %q. What constraints should the design respect?", c.domain.Key(), c.turns, text)
	// Split on spaces so the reply streams word by word.
	words := strings.SplitAfter(msg, " ")
	return words
}
