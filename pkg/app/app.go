package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/r3labs/sse/v2"

	"github.com/johngerving/dental-chat.git/pkg/chat"
	"github.com/johngerving/dental-chat.git/pkg/routes"
	"github.com/johngerving/dental-chat.git/pkg/views"
)

// Struct for the main app
type App struct {
	config     Config
	logger     *slog.Logger
	sseServer  *sse.Server
	chatClient *chat.Client
	routes     *routes.Table
	echo       *echo.Echo
}

// New() creates a new *App and returns it.
func New(config Config) (*App, error) {
	// Set up a logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Create a server for SSE streams
	sseServer := sse.New()

	// An empty API base is resolved against our own listen address, where
	// /api/* is proxied to the upstream backend.
	chatClient := chat.New(config.APIBase, chat.WithOrigin(localOrigin(config.ListenAddr)))

	a := &App{
		config:     config,
		logger:     logger,
		sseServer:  sseServer,
		chatClient: chatClient,
		routes:     routes.New(views.Chat(chat.Flows(), config.DefaultFlow)),
	}

	e, err := a.registerRoutes()
	if err != nil {
		return nil, err
	}
	a.echo = e

	return a, nil
}

// Start() starts the HTTP server and blocks until it stops.
func (a *App) Start() error {
	a.logger.Info("starting chat frontend",
		"listen", a.config.ListenAddr,
		"chat_endpoint", a.chatClient.Endpoint(),
	)

	// Start the server
	if err := a.echo.Start(a.config.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Run starts the HTTP server and shuts it down once ctx is done.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down chat frontend")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// Shutdown stops the HTTP server and closes all SSE streams.
func (a *App) Shutdown(ctx context.Context) error {
	a.sseServer.Close()
	return a.echo.Shutdown(ctx)
}

// Handler exposes the router, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.echo
}
