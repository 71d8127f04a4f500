package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stuagano/litellm/internal/config"
	"github.com/stuagano/litellm/internal/credentials"
	"github.com/stuagano/litellm/internal/dispatcher"
	"github.com/stuagano/litellm/internal/handlers"
	"github.com/stuagano/litellm/internal/middleware"
	"github.com/stuagano/litellm/internal/providers"
	"github.com/stuagano/litellm/internal/transport"
)

type Server struct {
	config     *config.Manager
	dispatcher *dispatcher.Dispatcher
	logger     *slog.Logger
	server     *http.Server
}

// New wires the full gateway: capability registry, credential source,
// HTTP transport, and the dispatcher the HTTP surface delegates to.
func New(configManager *config.Manager, logger *slog.Logger) (*Server, error) {
	cfg := configManager.Get()

	registry := providers.NewRegistry()
	if err := registerProviders(registry, cfg); err != nil {
		return nil, err
	}

	creds := credentials.NewStaticSource(cfg.ProviderSecrets())
	d := dispatcher.New(registry, transport.NewHTTPTransport(nil), creds, cfg.Timeout(), logger)

	return &Server{
		config:     configManager,
		dispatcher: d,
		logger:     logger,
	}, nil
}

// registerProviders builds the built-in transformers, honoring endpoint
// and project overrides from configuration.
func registerProviders(registry *providers.Registry, cfg *config.Config) error {
	base := func(name string) string {
		if p, ok := cfg.Find(name); ok {
			return p.APIBase
		}

		return ""
	}

	var project, region string
	if p, ok := cfg.Find("vertex"); ok {
		project, region = p.Project, p.Region
	}

	builtins := []providers.Transformer{
		providers.NewOpenAITransformer(base("openai")),
		providers.NewAnthropicTransformer(base("anthropic")),
		providers.NewGeminiTransformer(base("gemini")),
		providers.NewVertexTransformer(base("vertex"), project, region),
	}

	for _, t := range builtins {
		if err := registry.Register(t); err != nil {
			return err
		}
	}

	return nil
}

func (s *Server) Start() error {
	cfg := s.config.Get()

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	mux := s.setupRoutes()

	s.server = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	s.logger.Info("Starting server", "address", addr)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Server error", "error", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	s.logger.Info("Server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	s.logger.Info("Server exited")

	return nil
}

func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	gatewayHandler := handlers.NewGatewayHandler(s.dispatcher, s.logger)
	healthHandler := handlers.NewHealthHandler(s.logger)

	middlewareSet := middleware.NewMiddlewareSet(s.config, s.logger)
	defaultChain := middlewareSet.DefaultChain()

	mux.Handle("/health", middlewareSet.HealthChain().Handler(healthHandler))
	mux.Handle("POST /v1/dispatch/{provider}", defaultChain.Handler(http.HandlerFunc(gatewayHandler.Dispatch)))
	mux.Handle("GET /v1/jobs/{provider}/{id}", defaultChain.Handler(http.HandlerFunc(gatewayHandler.PollJob)))
	mux.Handle("GET /v1/providers", defaultChain.Handler(http.HandlerFunc(gatewayHandler.ListProviders)))

	return mux
}
