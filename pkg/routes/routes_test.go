package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

func stubView(body string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := io.WriteString(w, body)
		return err
	})
}

func TestNew_SingleChatRoute(t *testing.T) {
	table := New(stubView("chat"))

	routes := table.Routes()
	require.Len(t, routes, 1)
	require.Equal(t, "/", routes[0].Path)
	require.Equal(t, "chat", routes[0].Name)
}

func TestLookup(t *testing.T) {
	table := New(stubView("chat"))

	r, ok := table.Lookup("/")
	require.True(t, ok)
	require.Equal(t, "chat", r.Name)

	_, ok = table.Lookup("/#/")
	require.False(t, ok)
	_, ok = table.Lookup("/settings")
	require.False(t, ok)

	p, ok := table.Path("chat")
	require.True(t, ok)
	require.Equal(t, "/", p)
}

func TestRoutes_ReturnsCopy(t *testing.T) {
	table := New(stubView("chat"))

	routes := table.Routes()
	routes[0].Path = "/hijacked"

	r, ok := table.Lookup("/")
	require.True(t, ok)
	require.Equal(t, "chat", r.Name)
}

func TestRegister_NamedEchoRoute(t *testing.T) {
	e := echo.New()
	New(stubView("<p>chat window</p>")).Register(e)

	require.Equal(t, "/", e.Reverse("chat"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "<p>chat window</p>", rec.Body.String())
	require.Contains(t, rec.Header().Get(echo.HeaderContentType), "text/html")
}
