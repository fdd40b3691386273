package routes

import (
	"net/http"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
)

const (
	ChatPath = "/"
	ChatName = "chat"
)

// Route maps a URL path to a named view.
type Route struct {
	Path      string
	Name      string
	Component templ.Component
}

// Table is the immutable set of page routes built at startup.
type Table struct {
	routes []Route
}

// New builds the route table with the chat view at the root path.
func New(chatView templ.Component) *Table {
	return &Table{
		routes: []Route{
			{Path: ChatPath, Name: ChatName, Component: chatView},
		},
	}
}

// Routes returns a copy of the table entries.
func (t *Table) Routes() []Route {
	out := make([]Route, len(t.routes))
	copy(out, t.routes)
	return out
}

// Lookup returns the route registered for path.
func (t *Table) Lookup(path string) (Route, bool) {
	for _, r := range t.routes {
		if r.Path == path {
			return r, true
		}
	}
	return Route{}, false
}

// Path returns the path of the route called name.
func (t *Table) Path(name string) (string, bool) {
	for _, r := range t.routes {
		if r.Name == name {
			return r.Path, true
		}
	}
	return "", false
}

// Register adds every entry to e as a named GET route rendering its view.
// Routes are real URL paths; nothing is ever routed through a "#" fragment.
func (t *Table) Register(e *echo.Echo) {
	for _, r := range t.routes {
		e.GET(r.Path, render(r.Component)).Name = r.Name
	}
}

func render(c templ.Component) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		ctx.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
		ctx.Response().WriteHeader(http.StatusOK)
		return c.Render(ctx.Request().Context(), ctx.Response().Writer)
	}
}
