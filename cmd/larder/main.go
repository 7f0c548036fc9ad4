package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/naveenspark/larder/internal/auth"
	"github.com/naveenspark/larder/internal/cart"
	"github.com/naveenspark/larder/internal/config"
	"github.com/naveenspark/larder/internal/metrics"
	"github.com/naveenspark/larder/internal/session"
	"github.com/naveenspark/larder/internal/store"
	"github.com/naveenspark/larder/internal/tui"
	"github.com/naveenspark/larder/pkg/client"
	"github.com/naveenspark/larder/pkg/logger"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	cmd := ""
	if len(args) > 0 {
		cmd = args[0]
	}

	switch cmd {
	case "--version", "version", "-v":
		fmt.Fprintln(stdout, "larder "+version)
		return nil
	case "help", "--help", "-h":
		printHelp(stdout)
		return nil
	}

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	log, closeLog, err := openLog(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	a, err := wire(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	stopMetrics := serveMetrics(cfg.MetricsAddr, log)
	defer stopMetrics()

	p := newPrompter(stdin, stdout)
	switch cmd {
	case "":
		return a.runTUI(ctx)
	case "login":
		return a.runLogin(ctx, p)
	case "signup":
		return a.runSignup(ctx, p)
	case "logout":
		return a.runLogout(ctx, stdout)
	case "cart":
		return a.runCart(ctx, stdout)
	case "status":
		return a.runStatus(ctx, stdout)
	default:
		printHelp(stdout)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// openLog points the process logger at the log file. The TUI owns the
// terminal, so only LARDER_LOG_PRETTY sends logs to stderr.
func openLog(cfg *config.Config) (zerolog.Logger, func(), error) {
	if cfg.LogPretty {
		return logger.Init(logger.Options{Level: cfg.LogLevel, Pretty: true}), func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.LogPath()), 0o700); err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("create data dir: %w", err)
	}
	f, err := os.OpenFile(cfg.LogPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("open log file: %w", err)
	}
	l := logger.Init(logger.Options{Level: cfg.LogLevel, Output: f})
	return l, func() { _ = f.Close() }, nil
}

// larder is the wired program: one backend, one session, one cart.
type larder struct {
	cfg      *config.Config
	log      zerolog.Logger
	backend  store.Backend
	sessions *session.Store
	client   *client.Client
	engine   *cart.Engine
	ctrl     *auth.Controller
}

func wire(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*larder, error) {
	backend, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store, err)
	}

	sessions := session.New(backend, log)
	c := client.New(cfg.APIURL, sessions,
		client.WithTimeout(cfg.HTTPTimeout),
		client.WithLogger(log))
	engine := cart.New(ctx, store.NewCart(backend, log), c,
		cart.WithLogger(log),
		cart.WithQueueSize(cfg.SyncQueue),
		cart.WithCallTimeout(cfg.HTTPTimeout),
		cart.WithBackup(store.NewBackup(backend, cfg.BackupTTL, log)))
	ctrl := auth.New(c, sessions, engine, log)
	c.OnSessionExpired(ctrl.SessionExpired)

	return &larder{
		cfg:      cfg,
		log:      log,
		backend:  backend,
		sessions: sessions,
		client:   c,
		engine:   engine,
		ctrl:     ctrl,
	}, nil
}

// close waits for in-flight mirror calls before releasing the store.
func (a *larder) close() {
	a.engine.Close()
	if err := a.backend.Close(); err != nil {
		a.log.Warn().Err(err).Msg("close store")
	}
}

func (a *larder) runTUI(ctx context.Context) error {
	a.ctrl.Bootstrap(ctx)

	app := tui.NewApp(tui.Deps{
		Catalog: a.client,
		Cart:    a.engine,
		Auth:    a.ctrl,
		Site:    siteURL(a.cfg.APIURL),
	})
	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("tui error: %w", err)
	}
	return nil
}

// siteURL derives the storefront address from the API base URL.
func siteURL(apiURL string) string {
	s := strings.TrimRight(apiURL, "/")
	return strings.TrimSuffix(s, "/api")
}

// serveMetrics exposes the metrics registry on addr until the returned func
// is called. An empty addr disables it.
func serveMetrics(addr string, log zerolog.Logger) func() {
	if addr == "" {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn().Err(err).Str("addr", addr).Msg("metrics listener")
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx) //nolint:errcheck
	}
}
