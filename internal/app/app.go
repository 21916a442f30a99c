// Package app wires the order line together.
//
// The App struct owns the full lifecycle: New builds the interpreter, the
// session store, the dialog and the HTTP routes from config, Run serves
// webhooks until the context is cancelled, and Shutdown tears everything
// down in order.
//
// For testing, inject doubles via functional options (WithArchive,
// WithMetrics, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/callorder/internal/callsession"
	"github.com/MrWong99/callorder/internal/config"
	"github.com/MrWong99/callorder/internal/dialog"
	"github.com/MrWong99/callorder/internal/extract"
	"github.com/MrWong99/callorder/internal/health"
	"github.com/MrWong99/callorder/internal/interpret"
	"github.com/MrWong99/callorder/internal/match"
	"github.com/MrWong99/callorder/internal/normalize"
	"github.com/MrWong99/callorder/internal/notify"
	"github.com/MrWong99/callorder/internal/observe"
	"github.com/MrWong99/callorder/internal/orderlog"
	"github.com/MrWong99/callorder/internal/resilience"
	"github.com/MrWong99/callorder/internal/voice"
	"github.com/MrWong99/callorder/pkg/provider/llm"
)

// NamedLLM pairs an LLM provider with the name it was configured under.
type NamedLLM struct {
	Name     string
	Provider llm.Provider
}

// Providers holds the external backends. Nil means not configured. Populated
// by main.go via the config registry.
type Providers struct {
	// LLM backs the extraction fallback. When nil only local matching runs.
	LLM llm.Provider

	// LLMFallbacks are tried in order when LLM fails.
	LLMFallbacks []NamedLLM

	// Notifier delivers confirmed orders. Nil logs them instead.
	Notifier notify.Notifier
}

// App owns all subsystem lifetimes and serves the order line.
type App struct {
	cfg       *config.Config
	providers *Providers

	metrics  *observe.Metrics
	levelVar *slog.LevelVar
	watcher  *config.Watcher

	// Subsystems, initialised in New and torn down in Shutdown.
	llm     llm.Provider
	store   *callsession.MemStore
	reaper  *callsession.Reaper
	archive dialog.Archive
	dialog  *dialog.Orchestrator
	checks  []health.Checker
	handler http.Handler

	// mu guards server.
	mu     sync.Mutex
	server *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithArchive injects an order archive instead of connecting to PostgreSQL.
func WithArchive(a dialog.Archive) Option {
	return func(app *App) { app.archive = a }
}

// WithMetrics records on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar lets configuration reloads change the log level through v.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.levelVar = v }
}

// WithWatcher runs w alongside the server. Its onChange callback should call
// [App.Reload].
func WithWatcher(w *config.Watcher) Option {
	return func(a *App) { a.watcher = w }
}

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry).
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	a.initLLM()

	interpreter, err := a.buildInterpreter(cfg)
	if err != nil {
		return nil, fmt.Errorf("app: init interpreter: %w", err)
	}
	classifier, err := cfg.Matching.Classifier()
	if err != nil {
		return nil, fmt.Errorf("app: init classifier: %w", err)
	}

	a.initSessions()

	if err := a.initArchive(ctx); err != nil {
		a.close()
		return nil, fmt.Errorf("app: init order log: %w", err)
	}

	a.dialog, err = dialog.New(dialog.Config{
		Interpreter:        interpreter,
		Classifier:         classifier,
		Store:              a.store,
		Notifier:           providers.Notifier,
		Archive:            a.archive,
		Metrics:            a.metrics,
		Messages:           cfg.Dialog.Messages,
		Currency:           cfg.Menu.Currency,
		ShopName:           cfg.Menu.ShopName,
		MaxConfirmAttempts: cfg.Dialog.MaxConfirmAttempts,
		NotifyTimeout:      cfg.Dialog.NotifyTimeout,
	})
	if err != nil {
		a.close()
		return nil, fmt.Errorf("app: init dialog: %w", err)
	}

	a.handler = a.routes()
	return a, nil
}

// initLLM wraps the configured LLM and its fallbacks in a circuit-breaking
// failover group.
func (a *App) initLLM() {
	if a.providers.LLM == nil {
		if len(a.providers.LLMFallbacks) > 0 {
			slog.Warn("llm fallbacks configured without a primary llm, ignoring them")
		}
		return
	}
	if len(a.providers.LLMFallbacks) == 0 {
		a.llm = a.providers.LLM
		return
	}

	name := a.cfg.Providers.LLM.Name
	if name == "" {
		name = "primary"
	}
	fb := resilience.NewLLMFallback(a.providers.LLM, name, resilience.FallbackConfig{
		Kind:    "llm",
		Metrics: a.metrics,
	})
	for _, p := range a.providers.LLMFallbacks {
		fb.AddFallback(p.Name, p.Provider)
	}
	slog.Info("llm failover enabled", "providers", fb.Names())
	a.llm = fb
}

// buildInterpreter constructs the normalise-match-price pipeline described by
// cfg. It runs again on every configuration reload that touches the menu or
// the matchers.
func (a *App) buildInterpreter(cfg *config.Config) (*interpret.Interpreter, error) {
	catalog, aliases, err := cfg.Menu.Build()
	if err != nil {
		return nil, fmt.Errorf("build menu: %w", err)
	}
	norm, err := normalize.New(cfg.Menu.Substitutions)
	if err != nil {
		return nil, fmt.Errorf("build normalizer: %w", err)
	}

	strategies := []match.Strategy{
		match.NewLocal(aliases, match.WithThreshold(cfg.Matching.PhoneticThreshold)),
	}
	if a.llm != nil {
		ex, err := extract.New(a.llm, aliases,
			extract.WithTimeout(cfg.Extraction.Timeout),
			extract.WithTemperature(cfg.Extraction.Temperature),
			extract.WithCache(cfg.Extraction.CacheSize),
			extract.WithMetrics(a.metrics),
		)
		if err != nil {
			return nil, fmt.Errorf("build extractor: %w", err)
		}
		strategies = append(strategies, ex)
	}

	chain := match.NewChain(strategies...)
	slog.Debug("interpreter built", "items", catalog.Len(), "strategies", chain.Strategies())
	return interpret.New(norm, chain, catalog, a.metrics), nil
}

// initSessions creates the call session store and its reaper.
func (a *App) initSessions() {
	a.store = callsession.NewMemStore(
		callsession.WithShards(a.cfg.Sessions.Shards),
		callsession.WithMetrics(a.metrics),
	)
	a.reaper = callsession.NewReaper(callsession.ReaperConfig{
		Store:    a.store,
		TTL:      a.cfg.Sessions.TTL,
		Interval: a.cfg.Sessions.ReapInterval,
	})
	a.closers = append(a.closers, func() error {
		a.reaper.Stop()
		return nil
	})
}

// initArchive connects the PostgreSQL order log unless an archive was
// injected or no DSN is configured.
func (a *App) initArchive(ctx context.Context) error {
	if a.archive != nil {
		return nil
	}
	dsn := a.cfg.OrderLog.PostgresDSN
	if dsn == "" {
		return nil
	}

	store, err := orderlog.NewStore(ctx, dsn)
	if err != nil {
		return err
	}
	a.archive = store
	a.checks = append(a.checks, health.Checker{Name: "orderlog", Check: store.Ping})
	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})
	return nil
}

// routes builds the HTTP handler: telephony webhooks, probes and metrics, all
// behind the tracing middleware.
func (a *App) routes() http.Handler {
	voiceMux := http.NewServeMux()
	voice.New(voice.Config{
		Dialog:         a.dialog,
		Voice:          a.cfg.Twilio.Voice,
		Language:       a.cfg.Twilio.Language,
		OrderTimeout:   a.cfg.Twilio.OrderTimeout,
		ConfirmTimeout: a.cfg.Twilio.ConfirmTimeout,
	}).Register(voiceMux)

	var webhooks http.Handler = voiceMux
	if a.cfg.Twilio.ValidateSignatures {
		webhooks = voice.ValidateSignature(a.cfg.Twilio.AuthToken, a.cfg.Twilio.PublicURL)(voiceMux)
	}

	mux := http.NewServeMux()
	health.New(a.checks...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("/", webhooks)

	return observe.Middleware(a.metrics)(mux)
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Dialog returns the order dialog.
func (a *App) Dialog() *dialog.Orchestrator {
	return a.dialog
}

// Run serves HTTP on the configured listen address and runs the session
// reaper and, if set, the config watcher. It blocks until ctx is cancelled or
// the server fails, then shuts the server down gracefully.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen %q: %w", a.cfg.Server.ListenAddr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve is [App.Run] on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	a.mu.Lock()
	a.server = srv
	a.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("order line listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return a.reaper.Run(gctx)
	})

	if a.watcher != nil {
		g.Go(func() error {
			return a.watcher.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http server shutdown error", "err", err)
		}
		return nil
	})

	return g.Wait()
}

// Reload applies the difference between old and updated. Log level,
// menu, matcher and confirmation changes take effect for the next call;
// everything else is logged as requiring a restart.
func (a *App) Reload(old, updated *config.Config) {
	d := config.Diff(old, updated)
	if d.Empty() {
		return
	}

	if d.LogLevelChanged && a.levelVar != nil {
		a.levelVar.Set(d.NewLogLevel.SlogLevel())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}

	if d.InterpreterChanged {
		in, err := a.buildInterpreter(updated)
		if err != nil {
			slog.Error("config reload: keeping previous menu", "err", err)
		} else {
			a.dialog.SetInterpreter(in)
			slog.Info("config reload: menu and matchers updated")
		}
	}

	if d.ClassifierChanged {
		c, err := updated.Matching.Classifier()
		if err != nil {
			slog.Error("config reload: keeping previous confirmation vocabulary", "err", err)
		} else {
			a.dialog.SetClassifier(c)
			slog.Info("config reload: confirmation vocabulary updated")
		}
	}

	if len(d.RestartRequired) > 0 {
		slog.Warn("config reload: some changes need a restart", "sections", d.RestartRequired)
	}
}

// Shutdown tears down all subsystems in init order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		a.mu.Lock()
		srv := a.server
		a.mu.Unlock()
		if srv != nil {
			if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Warn("http server shutdown error", "err", err)
			}
		}
		if a.watcher != nil {
			a.watcher.Stop()
		}
		if a.dialog != nil {
			if err := a.dialog.Drain(ctx); err != nil {
				slog.Warn("orders still in delivery at shutdown", "err", err)
			}
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// close releases whatever New managed to open before failing.
func (a *App) close() {
	for _, closer := range a.closers {
		_ = closer()
	}
}
