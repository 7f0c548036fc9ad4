// Command larder-stub serves the in-memory recipe shop backend for local
// demos: larder-stub & LARDER_API_URL=http://localhost:8000/api larder
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-envconfig"

	"github.com/naveenspark/larder/internal/fakeapi"
	"github.com/naveenspark/larder/pkg/logger"
)

type stubConfig struct {
	Addr       string        `env:"STUB_ADDR,        default=:8000"`
	Users      []string      `env:"STUB_USERS,       default=demo:demo1234"`
	Secret     string        `env:"STUB_SECRET"`
	AccessTTL  time.Duration `env:"STUB_ACCESS_TTL,  default=5m"`
	RefreshTTL time.Duration `env:"STUB_REFRESH_TTL, default=24h"`
	LogLevel   string        `env:"STUB_LOG_LEVEL,   default=info"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var cfg stubConfig
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log := logger.Init(logger.Options{Level: cfg.LogLevel, Pretty: true})

	api, err := newAPI(cfg)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router(api, log),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Strs("users", usernames(cfg.Users)).Msg("stub backend listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newAPI(cfg stubConfig) (*fakeapi.Server, error) {
	opts := []fakeapi.Option{fakeapi.WithTokenTTL(cfg.AccessTTL, cfg.RefreshTTL)}
	if cfg.Secret != "" {
		opts = append(opts, fakeapi.WithSecret(cfg.Secret))
	}
	api := fakeapi.New(opts...)
	for _, u := range cfg.Users {
		name, pw, ok := strings.Cut(u, ":")
		if !ok || name == "" || pw == "" {
			return nil, fmt.Errorf("STUB_USERS entry %q is not user:password", u)
		}
		if _, err := api.AddUser(name, pw); err != nil {
			return nil, fmt.Errorf("add user %s: %w", name, err)
		}
	}
	return api, nil
}

// router mounts the backend under /api, where the client expects it.
func router(api http.Handler, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Mount("/api", api)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}

func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("took", time.Since(start)).
				Msg("request")
		})
	}
}

func usernames(users []string) []string {
	out := make([]string, 0, len(users))
	for _, u := range users {
		name, _, _ := strings.Cut(u, ":")
		out = append(out, name)
	}
	return out
}
