package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/99designs/gqlgen/graphql/playground"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hmans/entityql/internal/logger"
	"github.com/hmans/entityql/internal/policy"
)

const requestIDHeader = "X-Request-ID"

var (
	servePort  int
	serveWatch bool
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Start the GraphQL server",
	Long: `Start an HTTP server that serves the GraphQL API.

The server exposes:
  - GraphQL endpoint at /graphql (POST)
  - GraphQL Playground at /graphql (GET) for interactive queries
  - Prometheus metrics at /metrics

The caller is identified by the X-User-ID and X-User-Roles headers, which
policy rules see as user.id and user.roles.

Examples:
  # Start server on the configured port (default 22880)
  entityql serve

  # Start server on a custom port
  entityql serve --port 3000`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("port") {
			cfg.Server.Port = servePort
		}
		return runServer()
	},
}

func runServer() error {
	// Set up signal handling with context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := openApp(ctx, rootDir, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	if serveWatch {
		if err := app.enforcer.Watch(nil); err != nil {
			return fmt.Errorf("watching policy: %w", err)
		}
	}

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      newHandler(app),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Channel to listen for server errors
	serverErr := make(chan error, 1)

	go func() {
		log.Info("starting server", zap.String("addr", addr))
		fmt.Printf("GraphQL endpoint:   http://localhost:%d/graphql\n", cfg.Server.Port)
		fmt.Printf("GraphQL Playground: http://localhost:%d/graphql\n", cfg.Server.Port)
		serverErr <- server.ListenAndServe()
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErr:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		fmt.Printf("\nShutting down...\n")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		fmt.Println("Server stopped")
	}

	return nil
}

// newHandler routes the GraphQL endpoint, the playground and the metrics.
func newHandler(app *application) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/graphql", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Serve playground on GET requests
		if r.Method == http.MethodGet {
			playground.Handler("entityql", "/graphql").ServeHTTP(w, r)
			return
		}
		app.executor.ServeHTTP(w, r)
	}))
	mux.Handle("/metrics", promhttp.Handler())

	var h http.Handler = mux
	h = policy.Middleware(h)
	h = withRequestID(h)

	if len(cfg.Server.CORSOrigins) > 0 {
		h = cors.New(cors.Options{
			AllowedOrigins:   cfg.Server.CORSOrigins,
			AllowCredentials: true,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"*"},
		}).Handler(h)
	}
	return h
}

// withRequestID tags the request context with the client's request id or a
// fresh one, and echoes it in the response.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logger.ContextWithRequestID(r.Context(), id)))
	})
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 22880, "Port to listen on")
	serveCmd.Flags().BoolVar(&serveWatch, "watch-policy", true, "Reload the policy file when it changes")
	rootCmd.AddCommand(serveCmd)
}
