// ABOUTME: Gateway assembly: mounts the OAuth flow, grant issuer, MCP endpoint, and ops routes
// ABOUTME: Owns the HTTP server lifecycle with graceful shutdown

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pursuitworks/pursuit-gateway/internal/access"
	"github.com/pursuitworks/pursuit-gateway/internal/approval"
	"github.com/pursuitworks/pursuit-gateway/internal/authflow"
	"github.com/pursuitworks/pursuit-gateway/internal/config"
	"github.com/pursuitworks/pursuit-gateway/internal/mcp"
	"github.com/pursuitworks/pursuit-gateway/internal/provider"
	"github.com/pursuitworks/pursuit-gateway/internal/store"
	"github.com/pursuitworks/pursuit-gateway/internal/tools"
)

// Gateway owns the assembled HTTP server and its backing store.
type Gateway struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      store.Store
	provider   *provider.Provider
	httpServer *http.Server
}

// New wires the full gateway from configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	st, err := openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	prov := provider.New(st, cfg.Auth.TokenSecret, cfg.Auth.TokenTTL, cfg.Auth.CodeTTL)
	registry := access.NewRegistry(st)
	approvals := approval.NewCodec(cfg.Auth.CookieSecret)
	flow := authflow.New(cfg, prov, registry, approvals)

	toolRegistry := tools.NewRegistry(st)
	schemaCache := tools.NewSchemaCache(st, cfg.Tools.SchemaCacheTTL)

	mcpServer, err := mcp.NewServer(mcp.Config{
		Registry: toolRegistry,
		Verifier: prov,
		Logger:   logger.With("component", "mcp"),
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("creating MCP server: %w", err)
	}

	g := &Gateway{
		cfg:      cfg,
		logger:   logger.With("component", "server"),
		store:    st,
		provider: prov,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/authorize", flow.HandleAuthorize)
	mux.HandleFunc("/callback", flow.HandleCallback)
	mux.HandleFunc("/token", prov.HandleToken)
	mux.HandleFunc("/register", prov.HandleRegister)
	mcpServer.RegisterRoutes(mux)
	mux.Handle("/schema", g.requireGrant(http.HandlerFunc(schemaCache.HandleSchema)))
	mux.HandleFunc("/health", g.handleHealth)
	if cfg.Metrics.Enabled {
		mux.Handle(cfg.Metrics.Path, promhttp.Handler())
	}

	g.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return g, nil
}

func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Database.Driver {
	case "postgres":
		return store.NewPostgresStore(cfg.Database.DSN)
	default:
		return store.NewSQLiteStore(cfg.Database.Path)
	}
}

// requireGrant gates an ops endpoint on a valid bearer token.
func (g *Gateway) requireGrant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		if _, err := g.provider.VerifyToken(strings.TrimPrefix(header, "Bearer ")); err != nil {
			http.Error(w, "invalid bearer token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// Run serves until the context is canceled or the listener fails, then
// shuts down gracefully.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", g.httpServer.Addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	// Fresh context: the original is already canceled by the time we
	// get here.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	shutdownErr := g.Shutdown(shutdownCtx)

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// Shutdown stops the HTTP server and releases the store.
func (g *Gateway) Shutdown(ctx context.Context) error {
	var errs []error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}
	if err := g.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}
	return errors.Join(errs...)
}
