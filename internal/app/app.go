package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/vk/wavegrid/internal/config"
	"github.com/vk/wavegrid/internal/ctxlog"
	"github.com/vk/wavegrid/internal/executor"
	"github.com/vk/wavegrid/internal/metrics"
	"github.com/vk/wavegrid/internal/plan"
)

// ExecuteFuncFactory returns the ExecuteFunc used for one workflow.
type ExecuteFuncFactory func(w *config.Workflow) executor.ExecuteFunc

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	ctx        context.Context
	outW       io.Writer
	planW      io.Writer
	logger     *slog.Logger
	config     *Config
	loader     config.Loader
	newExecute ExecuteFuncFactory
	observers  []executor.Observer
	metrics    *metrics.Collector
	httpServer *http.Server

	mu      sync.RWMutex
	model   *config.Model
	plans   []*plan.ExecutionPlan
	results map[string]*executor.Result
}

// Option customizes an App.
type Option func(*App)

// WithPlanWriter sets where -dry-run plans are printed. Defaults to the log
// writer.
func WithPlanWriter(w io.Writer) Option {
	return func(a *App) { a.planW = w }
}

// WithExecuteFunc replaces the shell runner, mostly for tests.
func WithExecuteFunc(f ExecuteFuncFactory) Option {
	return func(a *App) { a.newExecute = f }
}

// WithObservers adds executor observers on top of the built-in ones.
func WithObservers(obs ...executor.Observer) Option {
	return func(a *App) { a.observers = append(a.observers, obs...) }
}

// NewApp is the constructor for the main application. It returns an App with
// its own isolated logger and metrics registry; workflows are loaded by Run.
func NewApp(outW io.Writer, cfg *Config, loader config.Loader, opts ...Option) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	a := &App{
		ctx:     ctxlog.WithLogger(context.Background(), logger),
		outW:    outW,
		planW:   outW,
		logger:  logger,
		config:  cfg,
		loader:  loader,
		metrics: metrics.NewCollector(),
		results: make(map[string]*executor.Result),
	}
	for _, opt := range opts {
		opt(a)
	}
	logger.Debug("Logger configured successfully.")
	return a
}

// Model returns the loaded workflow model, or nil before Run loaded it.
func (a *App) Model() *config.Model {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.model
}

// Plans returns the execution plans built by Run.
func (a *App) Plans() []*plan.ExecutionPlan {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]*plan.ExecutionPlan(nil), a.plans...)
}

// Result returns the outcome of the named workflow once it finished.
func (a *App) Result(workflow string) (*executor.Result, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	res, ok := a.results[workflow]
	return res, ok
}

// Metrics returns the application's run collector.
func (a *App) Metrics() *metrics.Collector {
	return a.metrics
}

func (a *App) setResult(res *executor.Result) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.results[res.Plan.Name] = res
}
