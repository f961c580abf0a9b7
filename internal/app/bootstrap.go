package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/leonepay/internal/config"
	"github.com/leonepay/internal/provider"
	"github.com/leonepay/internal/router"
	"github.com/leonepay/internal/worker"
)

// workerService adapts the queue consumer to the Service lifecycle.
type workerService struct {
	worker *worker.Worker
}

func (s *workerService) Name() string { return "worker" }

func (s *workerService) Start(ctx context.Context) error {
	if err := s.worker.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

func (s *workerService) Stop(ctx context.Context) error {
	s.worker.Shutdown()
	return nil
}

// BuildRunner wires the container and assembles the requested services.
func BuildRunner(cfg *config.Config, mode string) (*Runner, *provider.Container, error) {
	if cfg == nil {
		return nil, nil, errors.New("config is nil")
	}

	container, err := provider.Build(cfg)
	if err != nil {
		return nil, nil, err
	}

	var services []Service

	if mode == ModeAll || mode == ModeAPI {
		engine := router.SetupRouter(cfg, container)
		addr := cfg.Server.Host + ":" + cfg.Server.Port
		services = append(services, NewHTTPService(addr, engine))
	}

	if (mode == ModeAll || mode == ModeWorker) && cfg.Queue.Enabled {
		w := worker.New(worker.Options{
			RedisAddr:       fmt.Sprintf("%s:%d", cfg.Queue.Host, cfg.Queue.Port),
			RedisPassword:   cfg.Queue.Password,
			RedisDB:         cfg.Queue.DB,
			Concurrency:     cfg.Queue.Concurrency,
			Queues:          cfg.Queue.Queues,
			Orchestrator:    container.Orchestrator,
			Registry:        container.Registry,
			Scheduler:       container.Queue,
			PollInterval:    time.Duration(cfg.Scheduler.PollIntervalSeconds) * time.Second,
			PollMaxAttempts: cfg.Scheduler.PollMaxAttempts,
		})
		services = append(services, &workerService{worker: w})
	}

	if len(services) == 0 {
		return nil, nil, errors.New("no services initialized (check mode and config)")
	}
	return NewRunner(services...), container, nil
}

// Run is the application entry point.
func Run(opts Options) error {
	opts = normalizeOptions(opts)
	if opts.Config == nil {
		return errors.New("config is nil")
	}

	runner, container, err := BuildRunner(opts.Config, opts.Mode)
	if err != nil {
		return err
	}
	defer container.Close()

	addr := opts.Config.Server.Host + ":" + opts.Config.Server.Port
	opts.Logger.Infow("app_start", "addr", addr, "mode", opts.Mode)
	return RunWithOptions(runner, opts)
}
