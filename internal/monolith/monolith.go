// Package monolith provides the application container and module interface.
package monolith

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/fd1az/chainprobe/internal/apperror"
	"github.com/fd1az/chainprobe/internal/config"
	"github.com/fd1az/chainprobe/internal/di"
	"github.com/fd1az/chainprobe/internal/health"
	"github.com/fd1az/chainprobe/internal/logger"
)

// Runner is a long-running subsystem. A non-nil return is fatal to the
// whole process.
type Runner func(ctx context.Context) error

// Monolith is the main application container providing access to shared infrastructure.
type Monolith interface {
	Config() *config.Config
	Logger() logger.LoggerInterface
	Services() di.ServiceRegistry
	Health() health.Registry
	// Go schedules a runner started by Run.
	Go(name string, run Runner)
	// OnClose registers a cleanup run at shutdown.
	OnClose(fn func() error)
}

// Module represents a bounded context module that can register services and start up.
type Module interface {
	RegisterServices(di.Container) error
	Startup(context.Context, Monolith) error
}

type namedRunner struct {
	name string
	run  Runner
}

// app implements the Monolith interface.
type app struct {
	config    *config.Config
	logger    logger.LoggerInterface
	health    health.Registry
	container di.Container

	mu      sync.Mutex
	runners []namedRunner
	closers []func() error
}

// New creates a new Monolith instance.
func New(cfg *config.Config, log logger.LoggerInterface, hr health.Registry) *app {
	container := di.NewContainer()

	// Register global services
	container.Register("config", cfg)
	container.Register("logger", log)
	container.Register("health", hr)

	return &app{
		config:    cfg,
		logger:    log,
		health:    hr,
		container: container,
	}
}

func (a *app) Config() *config.Config {
	return a.config
}

func (a *app) Logger() logger.LoggerInterface {
	return a.logger
}

func (a *app) Services() di.ServiceRegistry {
	return a.container
}

func (a *app) Health() health.Registry {
	return a.health
}

// Go schedules run to start when Run is called.
func (a *app) Go(name string, run Runner) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runners = append(a.runners, namedRunner{name: name, run: run})
}

// OnClose registers a cleanup executed by Close in reverse order.
func (a *app) OnClose(fn func() error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closers = append(a.closers, fn)
}

// RegisterModules registers all provided modules.
func (a *app) RegisterModules(modules ...Module) error {
	for _, m := range modules {
		if err := m.RegisterServices(a.container); err != nil {
			return err
		}
	}
	return nil
}

// StartModules starts all provided modules.
func (a *app) StartModules(ctx context.Context, modules ...Module) error {
	for _, m := range modules {
		if err := m.Startup(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// Run starts every scheduled runner and blocks until ctx is done or one of
// them fails. The first failure cancels the others and is returned.
func (a *app) Run(ctx context.Context) error {
	a.mu.Lock()
	runners := append([]namedRunner(nil), a.runners...)
	a.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, r := range runners {
		g.Go(func() error {
			a.logger.Info(gctx, "subsystem started", "name", r.name)
			if err := r.run(gctx); err != nil {
				a.logger.Error(gctx, "subsystem failed", append([]any{"name", r.name}, apperror.LogAttrs(err)...)...)
				return fmt.Errorf("%s: %w", r.name, err)
			}
			a.logger.Info(gctx, "subsystem stopped", "name", r.name)
			return nil
		})
	}
	return g.Wait()
}

// Close runs registered cleanups.
func (a *app) Close() error {
	a.mu.Lock()
	closers := a.closers
	a.closers = nil
	a.mu.Unlock()

	var first error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}
