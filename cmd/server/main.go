package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"collabhub/internal/metrics"
	"collabhub/internal/registry"
	"collabhub/internal/routers"
	"collabhub/internal/session"
	"collabhub/internal/utils"
)

var (
	listenAndServe = func(s *http.Server) error { return s.ListenAndServe() }
	exitFunc       = defaultExit
	exit           = os.Exit

	defaultPort     = "8080"
	defaultOrigins  = "http://localhost:5173"
	shutdownTimeout = 10 * time.Second
)

func defaultExit(err error) {
	log.Printf("collab-hub: %v", err)
	exit(1)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// splitOrigins parses the comma-separated ALLOWED_ORIGINS value.
func splitOrigins(raw string) []string {
	var origins []string
	for _, part := range strings.Split(raw, ",") {
		if o := strings.TrimSpace(part); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func run(ctx context.Context) error {
	logger := utils.NewLogger()
	defer logger.Sync()

	origins := splitOrigins(getEnv("ALLOWED_ORIGINS", defaultOrigins))
	hub := session.NewHub()

	// Document lifecycle events are optional: without Redis the hub still
	// relays everything, it just never learns about deleted documents.
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		reg := registry.New(ctx, redisAddr, hub, logger)
		go reg.Subscribe()
		defer reg.Close()
	}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}))
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
		middleware.Timeout(60*time.Second),
	)
	r.Use(metrics.Middleware("collab-hub"))

	r.Mount("/", routers.New(logger, hub, origins))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Handle("/metrics", metrics.Handler())

	addr := ":" + getEnv("PORT", defaultPort)
	server := &http.Server{Addr: addr, Handler: r}

	errCh := make(chan error, 1)
	go func() { errCh <- listenAndServe(server) }()

	log.Printf("collab-hub listening on %s", addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		logger.Info("collab-hub shut down")
		return nil
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		exitFunc(err)
	}
}
