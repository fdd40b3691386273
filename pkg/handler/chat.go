package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/a-h/templ"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/r3labs/sse/v2"

	"github.com/johngerving/dental-chat.git/pkg/chat"
	"github.com/johngerving/dental-chat.git/pkg/templates"
)

// DefaultStreamTTL is how long a finished reply stream stays replayable for a
// browser that has not connected yet.
const DefaultStreamTTL = 2 * time.Minute

// Chatter sends a conversation to the chat backend.
type Chatter interface {
	Send(ctx context.Context, flow chat.Flow, messages []chat.Message) (*chat.Reply, error)
}

// GET /chat/responses
// Streams a backend reply to the client - listens on /chat/responses?stream=<STREAM_ID>.
// The client will then receive events from the stream STREAM_ID.
func LLMResponseGET(l *slog.Logger, sseServer *sse.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		streamID := c.QueryParam("stream")
		if streamID == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "please specify a stream")
		}
		if !sseServer.StreamExists(streamID) {
			return echo.NewHTTPError(http.StatusNotFound, "unknown stream")
		}

		go func() {
			<-c.Request().Context().Done() // Received Browser Disconnection
			l.Info("client disconnected", "stream", streamID)
			// When the client disconnects, remove the stream they were connected to
			sseServer.RemoveStream(streamID)
		}()

		sseServer.ServeHTTP(c.Response().Writer, c.Request())
		return nil
	}
}

// POST /chat/messages
// Appends the user's message to the conversation, answers with the user bubble
// and a pending assistant bubble, then publishes the backend reply to an SSE
// stream. The stream is removed streamTTL after the reply is published.
func ChatMessagePOST(l *slog.Logger, sseServer *sse.Server, client Chatter, defaultFlow chat.Flow, streamTTL time.Duration) echo.HandlerFunc {
	if streamTTL <= 0 {
		streamTTL = DefaultStreamTTL
	}
	return func(c echo.Context) error {
		message := strings.TrimSpace(c.FormValue("message"))
		if message == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "message must not be empty")
		}

		flow := chat.Flow(strings.TrimSpace(c.FormValue("flow")))
		if flow == "" {
			flow = defaultFlow
		}
		if !flow.Known() {
			l.Warn("unknown flow, backend will use its default", "flow", flow)
		}

		history, err := parseHistory(c.FormValue("history"))
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		history = append(history, chat.Message{Role: chat.RoleUser, Content: message})

		// Create a unique stream ID
		streamID := fmt.Sprintf("stream-%v", uuid.New())
		streamURL := fmt.Sprintf("/chat/responses?stream=%v", streamID)

		// Create a stream to publish the reply to
		sseServer.CreateStream(streamID)

		c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
		c.Response().WriteHeader(http.StatusOK)
		for _, component := range []templ.Component{
			templates.UserChatBubble(message),
			templates.LLMChatBubble(streamURL),
			templates.ChatForm(chat.Flows(), flow),
			templates.HistoryInput(history, true),
		} {
			if err := component.Render(c.Request().Context(), c.Response().Writer); err != nil {
				return err
			}
		}

		go publishReply(l, sseServer, client, streamID, flow, history, streamTTL)

		return nil
	}
}

// publishReply calls the backend and publishes the rendered reply, or an
// error notice, followed by a done event. The stream is dropped after ttl
// whether or not a browser ever subscribed.
func publishReply(l *slog.Logger, s *sse.Server, client Chatter, streamID string, flow chat.Flow, history []chat.Message, ttl time.Duration) {
	defer func() {
		// After everything is done, send a message to close the connection
		s.Publish(streamID, &sse.Event{
			Event: []byte("done"),
			Data:  []byte("done"),
		})
		time.AfterFunc(ttl, func() {
			s.RemoveStream(streamID)
		})
	}()

	reply, err := client.Send(context.Background(), flow, history)
	if err != nil {
		var se *chat.StatusError
		if errors.As(err, &se) {
			l.Error("chat backend returned an error", "status", se.StatusCode, "url", se.URL, "stream", streamID)
		} else {
			l.Error("chat request failed", "err", err, "stream", streamID)
		}
		data, renderErr := templates.TemplateToBytes(templates.ErrorBubble(errorNotice(err)))
		if renderErr != nil {
			l.Error("render error bubble", "err", renderErr)
			return
		}
		s.Publish(streamID, &sse.Event{Event: []byte("message"), Data: data})
		return
	}

	history = append(history, chat.Message{Role: chat.RoleAssistant, Content: reply.Reply})
	data, err := templates.TemplateToBytes(templates.HistoryInput(history, true))
	if err != nil {
		l.Error("render history", "err", err)
		return
	}

	s.Publish(streamID, &sse.Event{
		Event: []byte("message"),
		Data:  append([]byte(templates.RenderReply([]byte(reply.Reply))), data...),
	})
}

func parseHistory(raw string) ([]chat.Message, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []chat.Message{}, nil
	}
	var history []chat.Message
	if err := json.Unmarshal([]byte(raw), &history); err != nil {
		return nil, fmt.Errorf("invalid conversation history: %w", err)
	}
	return history, nil
}

func errorNotice(err error) string {
	var se *chat.StatusError
	if errors.As(err, &se) {
		return fmt.Sprintf("Sorry, the assistant is unavailable right now (status %d).", se.StatusCode)
	}
	return "Sorry, the assistant could not be reached. Please try again."
}
