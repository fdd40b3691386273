package app

import (
	"net"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/johngerving/dental-chat.git/pkg/handler"
)

// registerRoutes builds the echo router: page routes from the route table,
// then the message and stream endpoints.
func (a *App) registerRoutes() (*echo.Echo, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				a.logger.Error("request", "method", v.Method, "uri", v.URI, "status", v.Status, "err", v.Error)
				return nil
			}
			a.logger.Info("request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))

	a.routes.Register(e)

	// Same-origin chat calls land here and are forwarded to the backend.
	if a.config.APIBase == "" {
		upstream, err := parseUpstream(a.config.APIUpstream)
		if err != nil {
			return nil, err
		}
		api := e.Group("/api")
		api.Use(middleware.Proxy(middleware.NewRoundRobinBalancer([]*middleware.ProxyTarget{
			{Name: "chat-backend", URL: upstream},
		})))
	}

	e.POST("/chat/messages", handler.ChatMessagePOST(a.logger, a.sseServer, a.chatClient, a.config.DefaultFlow, a.config.StreamTTL))
	e.GET("/chat/responses", handler.LLMResponseGET(a.logger, a.sseServer))

	return e, nil
}

// localOrigin turns a listen address such as ":8080" into an origin the
// server can reach itself on.
func localOrigin(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return ""
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	return "http://" + host + ":" + port
}
