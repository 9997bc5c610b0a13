package httpadapter_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/PabloGalante/engigen-agent/internal/adapters/http"
	"github.com/PabloGalante/engigen-agent/internal/adapters/llm"
	"github.com/PabloGalante/engigen-agent/internal/app/conversation"
	"github.com/PabloGalante/engigen-agent/internal/domain"
)

func newTestServer(t *testing.T, factory domain.ConnectorFactory) (http.Handler, *conversation.Service) {
	t.Helper()

	store := conversation.NewSessionStore()
	svc := conversation.NewService(store, conversation.NewAgentRegistry(factory))
	return httpadapter.NewServer(svc), svc
}

func do(t *testing.T, h http.Handler, method, target, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type session struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Domain       string `json:"domain"`
	MessageCount int    `json:"message_count"`
	Messages     []struct {
		ID          string `json:"id"`
		Role        string `json:"role"`
		Content     string `json:"content"`
		IsStreaming bool   `json:"is_streaming"`
	} `json:"messages"`
}

func createSession(t *testing.T, h http.Handler, body string) session {
	t.Helper()
	w := do(t, h, http.MethodPost, "/sessions", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[session](t, w)
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, llm.NewMockFactory())
	w := do(t, srv, http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestHealthzChecksStorage(t *testing.T) {
	svc := conversation.NewService(conversation.NewSessionStore(), conversation.NewAgentRegistry(llm.NewMockFactory()))

	up := httpadapter.NewServer(svc, httpadapter.WithPinger(stubPinger{}))
	w := do(t, up, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)

	down := httpadapter.NewServer(svc, httpadapter.WithPinger(stubPinger{err: assert.AnError}))
	w = do(t, down, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "unavailable")
}

func TestListDomains(t *testing.T) {
	srv, _ := newTestServer(t, llm.NewMockFactory())
	w := do(t, srv, http.MethodGet, "/domains", "")
	require.Equal(t, http.StatusOK, w.Code)

	got := decode[[]map[string]string](t, w)
	require.Len(t, got, len(domain.AllDomains()))
	assert.Equal(t, "software", got[0]["key"])
	assert.Equal(t, "Software Engineering", got[0]["label"])
}

func TestCreateSession(t *testing.T) {
	srv, _ := newTestServer(t, llm.NewMockFactory())

	sess := createSession(t, srv, `{"domain":"civil"}`)
	assert.Equal(t, "Civil Engineering", sess.Domain)
	assert.Equal(t, "New Civil Engineering Chat", sess.Title)
	assert.NotEmpty(t, sess.ID)

	sess = createSession(t, srv, "")
	assert.Equal(t, "Software Engineering", sess.Domain)

	w := do(t, srv, http.MethodPost, "/sessions", `{"domain":"astrology"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, srv, http.MethodPost, "/sessions", `{`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListAndSelectSessions(t *testing.T) {
	srv, _ := newTestServer(t, llm.NewMockFactory())
	a := createSession(t, srv, `{"domain":"software"}`)
	b := createSession(t, srv, `{"domain":"mechanical"}`)

	type list struct {
		Sessions        []session `json:"sessions"`
		ActiveSessionID string    `json:"active_session_id"`
		Busy            bool      `json:"busy"`
	}

	got := decode[list](t, do(t, srv, http.MethodGet, "/sessions", ""))
	require.Len(t, got.Sessions, 2)
	assert.Equal(t, b.ID, got.Sessions[0].ID, "newest first")
	assert.Equal(t, b.ID, got.ActiveSessionID)
	assert.False(t, got.Busy)

	w := do(t, srv, http.MethodPost, "/sessions/"+a.ID+"/select", "")
	require.Equal(t, http.StatusOK, w.Code)
	got = decode[list](t, do(t, srv, http.MethodGet, "/sessions", ""))
	assert.Equal(t, a.ID, got.ActiveSessionID)

	w = do(t, srv, http.MethodPost, "/sessions/nope/select", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	got = decode[list](t, do(t, srv, http.MethodGet, "/sessions", ""))
	assert.Equal(t, a.ID, got.ActiveSessionID, "unknown id leaves active untouched")
}

func TestGetSession(t *testing.T) {
	srv, _ := newTestServer(t, llm.NewMockFactory())
	sess := createSession(t, srv, `{"domain":"systems"}`)

	w := do(t, srv, http.MethodGet, "/sessions/"+sess.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, sess.ID, decode[session](t, w).ID)

	w = do(t, srv, http.MethodGet, "/sessions/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestClearSessionsNeedsConfirmation(t *testing.T) {
	srv, svc := newTestServer(t, llm.NewMockFactory())
	createSession(t, srv, "")

	w := do(t, srv, http.MethodDelete, "/sessions", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Len(t, svc.ListSessions(), 1)

	w = do(t, srv, http.MethodDelete, "/sessions?confirm=true", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, svc.ListSessions())
	assert.Empty(t, svc.ActiveSessionID())
}

func TestSendMessageJSON(t *testing.T) {
	srv, _ := newTestServer(t, llm.Scripted("Hi ", "there!"))
	sess := createSession(t, srv, "")

	w := do(t, srv, http.MethodPost, "/sessions/"+sess.ID+"/messages", `{"text":"Hello"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		UserMessage  struct{ Role, Content string } `json:"user_message"`
		ModelMessage *struct {
			Role        string `json:"role"`
			Content     string `json:"content"`
			IsStreaming bool   `json:"is_streaming"`
		} `json:"model_message"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Hello", resp.UserMessage.Content)
	require.NotNil(t, resp.ModelMessage)
	assert.Equal(t, "Hi there!", resp.ModelMessage.Content)
	assert.False(t, resp.ModelMessage.IsStreaming)

	got := decode[session](t, do(t, srv, http.MethodGet, "/sessions/"+sess.ID, ""))
	assert.Equal(t, "Hello...", got.Title)
	assert.Len(t, got.Messages, 2)
}

func TestSendMessageFailureReturnsNotice(t *testing.T) {
	factory := llm.NewMockFactory()
	factory.FailAfter = 0
	srv, _ := newTestServer(t, factory)
	sess := createSession(t, srv, "")

	w := do(t, srv, http.MethodPost, "/sessions/"+sess.ID+"/messages", `{"text":"Hello"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "System Error")
}

func TestSendMessageNoops(t *testing.T) {
	srv, svc := newTestServer(t, llm.NewMockFactory())
	sess := createSession(t, srv, "")

	w := do(t, srv, http.MethodPost, "/sessions/"+sess.ID+"/messages", `{"text":"   "}`)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, srv, http.MethodPost, "/sessions/"+sess.ID+"/messages", `{"text":"   "}`, "Accept", "text/event-stream")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())

	got, _ := svc.GetSession(domain.SessionID(sess.ID))
	assert.Empty(t, got.Messages)

	w = do(t, srv, http.MethodPost, "/sessions/unknown/messages", `{"text":"hi"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, srv, http.MethodPost, "/sessions/"+sess.ID+"/messages", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type sseEvent struct {
	name string
	data string
}

func readEvents(t *testing.T, body *bytes.Buffer) []sseEvent {
	t.Helper()
	var (
		out []sseEvent
		cur sseEvent
	)
	sc := bufio.NewScanner(body)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			cur.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.data = strings.TrimPrefix(line, "data: ")
		case line == "":
			out = append(out, cur)
			cur = sseEvent{}
		}
	}
	require.NoError(t, sc.Err())
	return out
}

func TestSendMessageEventStream(t *testing.T) {
	srv, _ := newTestServer(t, llm.Scripted("Hi ", "there!"))
	sess := createSession(t, srv, "")

	w := do(t, srv, http.MethodPost, "/sessions/"+sess.ID+"/messages", `{"text":"Hello"}`, "Accept", "text/event-stream")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	events := readEvents(t, w.Body)
	// user, placeholder, two fragments, finalize, done
	require.Len(t, events, 6)
	for _, e := range events[:5] {
		assert.Equal(t, "message", e.name)
	}

	var last struct {
		Content     string `json:"content"`
		IsStreaming bool   `json:"is_streaming"`
	}
	require.NoError(t, json.Unmarshal([]byte(events[4].data), &last))
	assert.Equal(t, "Hi there!", last.Content)
	assert.False(t, last.IsStreaming)

	assert.Equal(t, "done", events[5].name)
	assert.JSONEq(t, `{"session_id":"`+sess.ID+`","failed":false}`, events[5].data)
}

// blockingFactory streams nothing until released or cancelled.
type blockingFactory struct {
	started chan struct{}
	release chan struct{}
}

func (f *blockingFactory) NewConnector(context.Context, domain.SessionID, domain.EngineeringDomain) (domain.Connector, error) {
	return f, nil
}

func (f *blockingFactory) SendMessageStream(ctx context.Context, _ string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		f.started <- struct{}{}
		select {
		case <-f.release:
			yield("done", nil)
		case <-ctx.Done():
			yield("", &domain.RemoteServiceError{Op: "stream", Err: ctx.Err()})
		}
	}
}

func TestBusyAndCancel(t *testing.T) {
	factory := &blockingFactory{started: make(chan struct{}, 1), release: make(chan struct{})}
	srv, svc := newTestServer(t, factory)
	a := createSession(t, srv, "")
	b := createSession(t, srv, "")

	first := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		req := httptest.NewRequest(http.MethodPost, "/sessions/"+a.ID+"/messages", strings.NewReader(`{"text":"slow"}`))
		w := httptest.NewRecorder()
		srv.ServeHTTP(w, req)
		first <- w
	}()

	select {
	case <-factory.started:
	case <-time.After(2 * time.Second):
		t.Fatal("stream never started")
	}
	assert.True(t, svc.Busy())

	w := do(t, srv, http.MethodPost, "/sessions/"+b.ID+"/messages", `{"text":"other"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, srv, http.MethodPost, "/cancel", "")
	assert.JSONEq(t, `{"cancelled":true}`, w.Body.String())

	select {
	case res := <-first:
		assert.Equal(t, http.StatusOK, res.Code)
		assert.Contains(t, res.Body.String(), "System Error")
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled send did not return")
	}
	assert.False(t, svc.Busy())

	w = do(t, srv, http.MethodPost, "/cancel", "")
	assert.JSONEq(t, `{"cancelled":false}`, w.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, llm.NewMockFactory())
	do(t, srv, http.MethodGet, "/healthz", "")

	w := do(t, srv, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "engigen_http_requests_total")
	assert.Contains(t, w.Body.String(), `route="/healthz"`)
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t, llm.NewMockFactory())
	w := do(t, srv, http.MethodOptions, "/sessions", "",
		"Origin", "http://localhost:5173",
		"Access-Control-Request-Method", "POST",
	)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
