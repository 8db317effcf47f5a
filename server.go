// Package paneflow composes the resize scheduler, its render driver,
// and the operator-facing surfaces into one runnable server.
package paneflow

import (
	"context"
	"errors"
	"sync"
	"time"

	"pkt.systems/paneflow/console"
	"pkt.systems/paneflow/core"
	"pkt.systems/paneflow/driver"
	"pkt.systems/paneflow/httpapi"
	"pkt.systems/paneflow/internal/eventbus"
	"pkt.systems/paneflow/internal/metrics"
	"pkt.systems/paneflow/internal/opauth"
	"pkt.systems/paneflow/schema"
	"pkt.systems/pslog"
)

// Server composes the driver loop with the console and HTTP surfaces.
type Server interface {
	Start(ctx context.Context) error
	Wait() error
	Stop(ctx context.Context) error
}

// ServerConfig configures the compositor.
type ServerConfig struct {
	Scheduler schema.SchedulerConfig
	Driver    driver.Config
	Console   console.Config
	HTTP      httpapi.Config
	Auth      AuthConfig
}

// AuthConfig defines operator storage settings.
type AuthConfig struct {
	OperatorFile  string
	SeedOperators []SeedOperator
}

// SeedOperator seeds an initial operator record.
type SeedOperator struct {
	Name          string
	PasswordHash  string
	TOTPSecret    string
	AuthorizedKey string
}

// ServerDeps captures dependencies required to build the server.
// Reflower defaults to a no-op when the caller brings no compositor.
type ServerDeps struct {
	Reflower driver.Reflower
	Logger   pslog.Logger
	Clock    func() time.Time
}

// ServerOption toggles compositor components. The driver loop always runs.
type ServerOption func(*serverOptions)

type serverOptions struct {
	enableConsole bool
	enableHTTP    bool
}

// WithConsole enables the SSH ops console.
func WithConsole() ServerOption {
	return func(o *serverOptions) { o.enableConsole = true }
}

// WithHTTP enables the HTTP debug API.
func WithHTTP() ServerOption {
	return func(o *serverOptions) { o.enableHTTP = true }
}

// New constructs a composable paneflow server.
func New(cfg ServerConfig, deps ServerDeps, opts ...ServerOption) (Server, error) {
	options := serverOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	reflower := deps.Reflower
	if reflower == nil {
		reflower = driver.NopReflower{}
	}

	sched, err := core.NewScheduler(cfg.Scheduler, core.SchedulerDeps{Logger: logger, Clock: deps.Clock})
	if err != nil {
		return nil, err
	}

	collector := metrics.NewCollector()
	bus := eventbus.New(logger)

	drv, err := driver.New(cfg.Driver, driver.Deps{
		Scheduler: sched,
		Reflower:  reflower,
		Bus:       bus,
		Metrics:   collector,
		Logger:    logger,
		Clock:     deps.Clock,
	})
	if err != nil {
		return nil, err
	}

	var consoleSrv *console.Server
	var httpSrv *httpapi.Server
	if options.enableConsole {
		store, err := opauth.NewStoreWithLogger(cfg.Auth.OperatorFile, toSeeds(cfg.Auth.SeedOperators), logger)
		if err != nil {
			return nil, err
		}
		consoleSrv = &console.Server{
			Addr:        cfg.Console.Addr,
			HostKeyPath: cfg.Console.HostKeyPath,
			EventTail:   cfg.Console.EventTail,
			Source:      drv,
			EventBus:    bus,
			AuthStore:   store,
			Logger:      logger,
		}
	}
	if options.enableHTTP {
		httpSrv = httpapi.NewServer(cfg.HTTP, drv, collector.Registry())
	}

	return &compositeServer{
		cfg:        cfg,
		options:    options,
		driver:     drv,
		consoleSrv: consoleSrv,
		httpSrv:    httpSrv,
	}, nil
}

func toSeeds(seeds []SeedOperator) []opauth.Seed {
	if len(seeds) == 0 {
		return nil
	}
	out := make([]opauth.Seed, 0, len(seeds))
	for _, seed := range seeds {
		out = append(out, opauth.Seed{
			Name:          seed.Name,
			PasswordHash:  seed.PasswordHash,
			TOTPSecret:    seed.TOTPSecret,
			AuthorizedKey: seed.AuthorizedKey,
		})
	}
	return out
}

type compositeServer struct {
	cfg        ServerConfig
	options    serverOptions
	driver     *driver.Driver
	consoleSrv *console.Server
	httpSrv    *httpapi.Server
	logger     pslog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	errCh   chan error
	started bool
}

func (s *compositeServer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		pslog.Ctx(ctx).Warn("server start rejected", "reason", "already started")
		return errors.New("server already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.errCh = make(chan error, 3)
	s.started = true
	s.logger = pslog.Ctx(s.ctx)
	s.mu.Unlock()

	log := s.logger
	log.Info(
		"server start",
		"console", s.options.enableConsole,
		"http", s.options.enableHTTP,
		"console_addr", s.cfg.Console.Addr,
		"http_addr", s.cfg.HTTP.Addr,
	)
	go func() {
		if err := s.driver.Run(s.ctx); err != nil {
			log.Error("driver failed", "err", err)
			s.errCh <- err
		}
	}()
	if s.options.enableConsole && s.consoleSrv != nil {
		go func() {
			if err := s.consoleSrv.ListenAndServe(s.ctx); err != nil {
				log.Error("console server failed", "err", err)
				s.errCh <- err
			}
		}()
	}
	if s.options.enableHTTP && s.httpSrv != nil {
		go func() {
			if err := httpapi.ListenAndServe(s.ctx, s.cfg.HTTP.Addr, s.httpSrv.Handler()); err != nil {
				log.Error("http server failed", "err", err)
				s.errCh <- err
			}
		}()
	}
	return nil
}

func (s *compositeServer) Wait() error {
	s.mu.Lock()
	ctx := s.ctx
	errCh := s.errCh
	started := s.started
	s.mu.Unlock()
	if !started {
		return errors.New("server not started")
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil {
			pslog.Ctx(ctx).Error("server stopped", "err", err)
			_ = s.Stop(context.Background())
			return err
		}
		return nil
	}
}

func (s *compositeServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	started := s.started
	log := s.logger
	s.mu.Unlock()
	if !started {
		return nil
	}
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	log.Info("server stop requested")
	if cancel != nil {
		cancel()
	}
	if ctx == nil {
		log.Info("server stop completed")
		return nil
	}
	select {
	case <-ctx.Done():
		log.Warn("server stop timed out", "err", ctx.Err())
		return ctx.Err()
	case <-s.ctx.Done():
		log.Info("server stopped")
		return nil
	}
}
