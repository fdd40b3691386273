package handler

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/r3labs/sse/v2"
	"github.com/stretchr/testify/require"

	"github.com/johngerving/dental-chat.git/pkg/chat"
)

type stubChatter struct {
	mu       sync.Mutex
	reply    *chat.Reply
	err      error
	flow     chat.Flow
	messages []chat.Message
}

func (s *stubChatter) Send(_ context.Context, flow chat.Flow, messages []chat.Message) (*chat.Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flow = flow
	s.messages = messages
	return s.reply, s.err
}

func (s *stubChatter) last() (chat.Flow, []chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flow, s.messages
}

var streamURLPattern = regexp.MustCompile(`sse-connect="([^"]+)"`)

func newTestServer(t *testing.T, client Chatter) *httptest.Server {
	t.Helper()
	srv, _ := newTestServerWithTTL(t, client, DefaultStreamTTL)
	return srv
}

func newTestServerWithTTL(t *testing.T, client Chatter, ttl time.Duration) (*httptest.Server, *sse.Server) {
	t.Helper()
	l := slog.New(slog.NewTextHandler(io.Discard, nil))
	sseServer := sse.New()
	t.Cleanup(sseServer.Close)

	e := echo.New()
	e.POST("/chat/messages", ChatMessagePOST(l, sseServer, client, chat.FlowGeneralInfo, ttl))
	e.GET("/chat/responses", LLMResponseGET(l, sseServer))

	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv, sseServer
}

func postMessage(t *testing.T, srv *httptest.Server, form url.Values) (int, string) {
	t.Helper()
	res, err := http.PostForm(srv.URL+"/chat/messages", form)
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res.StatusCode, string(body)
}

// readStream collects the SSE stream until the done event arrives.
func readStream(t *testing.T, srv *httptest.Server, streamURL string) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+streamURL, nil)
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var b strings.Builder
	scanner := bufio.NewScanner(res.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		b.WriteString(line)
		b.WriteString("\n")
		if line == "event: done" {
			break
		}
	}
	return b.String()
}

func TestChatMessagePOST_EmptyMessage(t *testing.T) {
	srv := newTestServer(t, &stubChatter{})

	status, _ := postMessage(t, srv, url.Values{"message": {"   "}})
	require.Equal(t, http.StatusBadRequest, status)
}

func TestChatMessagePOST_InvalidHistory(t *testing.T) {
	srv := newTestServer(t, &stubChatter{})

	status, _ := postMessage(t, srv, url.Values{"message": {"hi"}, "history": {"not-json"}})
	require.Equal(t, http.StatusBadRequest, status)
}

func TestChatMessagePOST_HappyPath(t *testing.T) {
	client := &stubChatter{reply: &chat.Reply{Reply: "**Tuesday** at 9am is open."}}
	srv := newTestServer(t, client)

	status, body := postMessage(t, srv, url.Values{
		"message": {"next week please"},
		"flow":    {"find_slots"},
		"history": {`[{"role":"user","content":"book a cleaning"},{"role":"assistant","content":"When?"}]`},
	})
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, body, "next week please")

	m := streamURLPattern.FindStringSubmatch(body)
	require.Len(t, m, 2)
	streamURL := strings.ReplaceAll(m[1], "&amp;", "&")
	require.True(t, strings.HasPrefix(streamURL, "/chat/responses?stream=stream-"))

	events := readStream(t, srv, streamURL)
	require.Contains(t, events, "<strong>Tuesday</strong>")
	require.Contains(t, events, "event: done")

	flow, msgs := client.last()
	require.Equal(t, chat.FlowFindSlots, flow)
	require.Equal(t, []chat.Message{
		{Role: chat.RoleUser, Content: "book a cleaning"},
		{Role: chat.RoleAssistant, Content: "When?"},
		{Role: chat.RoleUser, Content: "next week please"},
	}, msgs)
}

func TestChatMessagePOST_DefaultFlow(t *testing.T) {
	client := &stubChatter{reply: &chat.Reply{Reply: "Hi"}}
	srv := newTestServer(t, client)

	status, body := postMessage(t, srv, url.Values{"message": {"hello"}})
	require.Equal(t, http.StatusOK, status)

	m := streamURLPattern.FindStringSubmatch(body)
	require.Len(t, m, 2)
	readStream(t, srv, m[1])

	flow, msgs := client.last()
	require.Equal(t, chat.FlowGeneralInfo, flow)
	require.Equal(t, []chat.Message{{Role: chat.RoleUser, Content: "hello"}}, msgs)
}

func TestChatMessagePOST_BackendFailure(t *testing.T) {
	client := &stubChatter{err: &chat.StatusError{StatusCode: http.StatusInternalServerError, URL: "/api/chat/"}}
	srv := newTestServer(t, client)

	status, body := postMessage(t, srv, url.Values{"message": {"hello"}})
	require.Equal(t, http.StatusOK, status)

	m := streamURLPattern.FindStringSubmatch(body)
	require.Len(t, m, 2)
	events := readStream(t, srv, m[1])
	require.Contains(t, events, "bubble-error")
	require.Contains(t, events, "status 500")
}

func TestChatMessagePOST_UnreadStreamIsRemoved(t *testing.T) {
	client := &stubChatter{reply: &chat.Reply{Reply: "Hi"}}
	srv, sseServer := newTestServerWithTTL(t, client, 50*time.Millisecond)

	status, body := postMessage(t, srv, url.Values{"message": {"hello"}})
	require.Equal(t, http.StatusOK, status)

	m := streamURLPattern.FindStringSubmatch(body)
	require.Len(t, m, 2)
	streamID := strings.TrimPrefix(m[1], "/chat/responses?stream=")
	require.True(t, strings.HasPrefix(streamID, "stream-"))

	// Nobody subscribes; the stream must still go away once the reply is out.
	require.Eventually(t, func() bool {
		return !sseServer.StreamExists(streamID)
	}, 5*time.Second, 20*time.Millisecond)
}

func TestLLMResponseGET_MissingStream(t *testing.T) {
	srv := newTestServer(t, &stubChatter{})

	res, err := http.Get(srv.URL + "/chat/responses")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusBadRequest, res.StatusCode)

	res2, err := http.Get(srv.URL + "/chat/responses?stream=nope")
	require.NoError(t, err)
	defer res2.Body.Close()
	require.Equal(t, http.StatusNotFound, res2.StatusCode)
}

func TestParseHistory(t *testing.T) {
	h, err := parseHistory("")
	require.NoError(t, err)
	require.Empty(t, h)

	h, err = parseHistory(`[{"role":"user","content":"a"},{"role":"assistant","content":"b"}]`)
	require.NoError(t, err)
	require.Equal(t, "a", h[0].Content)
	require.Equal(t, "b", h[1].Content)

	_, err = parseHistory(`{`)
	require.Error(t, err)
}
