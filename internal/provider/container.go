// Package provider wires the engine's components together.
package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/leonepay/internal/cache"
	"github.com/leonepay/internal/config"
	"github.com/leonepay/internal/constants"
	"github.com/leonepay/internal/gateway"
	"github.com/leonepay/internal/gateway/afrimoney"
	"github.com/leonepay/internal/gateway/bank"
	"github.com/leonepay/internal/gateway/card"
	"github.com/leonepay/internal/gateway/cash"
	"github.com/leonepay/internal/gateway/orangemoney"
	"github.com/leonepay/internal/logger"
	"github.com/leonepay/internal/models"
	"github.com/leonepay/internal/queue"
	"github.com/leonepay/internal/repository"
	"github.com/leonepay/internal/service"
)

// Container holds the wired components.
type Container struct {
	Registry *gateway.Registry

	Transactions   repository.TransactionRepository
	Logs           repository.TransactionLogRepository
	GatewayConfigs repository.GatewayConfigRepository
	Refunds        repository.RefundRepository
	Ledger         repository.LimitLedgerRepository
	Receipts       repository.WebhookReceiptRepository

	Limits         *service.LimitEnforcer
	Fees           *service.FeeCalculator
	Orchestrator   *service.TransactionOrchestrator
	Webhooks       *service.WebhookProcessor
	Reconciliation *service.ReconciliationEngine

	Queue       *queue.Client
	Redis       *redis.Client
	ConfigCache *cache.GatewayConfigCache
}

// Build assembles the container from configuration. The database must
// be initialized first.
func Build(cfg *config.Config) (*Container, error) {
	c := &Container{
		Registry:       gateway.NewRegistry(),
		Transactions:   repository.NewTransactionRepository(models.DB),
		Logs:           repository.NewTransactionLogRepository(models.DB),
		GatewayConfigs: repository.NewGatewayConfigRepository(models.DB),
		Refunds:        repository.NewRefundRepository(models.DB),
		Ledger:         repository.NewLimitLedgerRepository(models.DB),
		Receipts:       repository.NewWebhookReceiptRepository(models.DB),
		Fees:           service.NewFeeCalculator(),
	}
	c.Limits = service.NewLimitEnforcer(c.Ledger)

	if cfg.Redis.Enabled {
		c.Redis = redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	c.ConfigCache = cache.NewGatewayConfigCache(c.Redis, c.GatewayConfigs, cfg.Redis.Prefix)

	var scheduler service.TaskScheduler = service.NopScheduler{}
	if cfg.Queue.Enabled {
		c.Queue = queue.NewClient(
			fmt.Sprintf("%s:%d", cfg.Queue.Host, cfg.Queue.Port),
			cfg.Queue.Password,
			cfg.Queue.DB,
		)
		scheduler = c.Queue
	}

	var notifier service.Notifier = service.NopNotifier{}
	if cfg.Webhook.NotifySecret != "" {
		notifier = service.NewHTTPNotifier(cfg.Webhook.NotifySecret)
	}

	c.Orchestrator = service.NewTransactionOrchestrator(service.OrchestratorOptions{
		DB:              models.DB,
		Transactions:    c.Transactions,
		Logs:            c.Logs,
		GatewayConfigs:  c.GatewayConfigs,
		Configs:         c.ConfigCache,
		Refunds:         c.Refunds,
		Limits:          c.Limits,
		Fees:            c.Fees,
		Registry:        c.Registry,
		Scheduler:       scheduler,
		Notifier:        notifier,
		Risk: service.NewAmountThresholdScorer(
			cfg.Risk.MediumAmount,
			cfg.Risk.HighAmount,
			cfg.Risk.CriticalAmount,
		),
		CallbackBaseURL: cfg.Webhook.CallbackBaseURL,
		PollInterval:    time.Duration(cfg.Scheduler.PollIntervalSeconds) * time.Second,
	})
	c.Webhooks = service.NewWebhookProcessor(c.Registry, c.Transactions, c.Receipts, c.Orchestrator)
	c.Reconciliation = service.NewReconciliationEngine(c.Transactions, c.Logs, c.Limits)

	if err := c.RebuildRegistry(); err != nil {
		return nil, err
	}
	return c, nil
}

// ReloadGateways applies an operator configuration change: it drops
// every cached gateway configuration, removes adapters for deactivated
// gateways and rebuilds the registry from the database.
func (c *Container) ReloadGateways(ctx context.Context) error {
	cfgs, err := c.GatewayConfigs.ListAll()
	if err != nil {
		return err
	}
	for i := range cfgs {
		gc := &cfgs[i]
		c.ConfigCache.Invalidate(ctx, gc.GatewayType)
		if !gc.IsActive {
			c.Registry.Deregister(gc.GatewayType)
		}
	}
	return c.RebuildRegistry()
}

// RebuildRegistry reloads adapters from the active gateway
// configurations. Called at startup and after a configuration change.
func (c *Container) RebuildRegistry() error {
	cfgs, err := c.GatewayConfigs.ListActive()
	if err != nil {
		return err
	}
	for _, gc := range cfgs {
		adapter, err := buildAdapter(&gc)
		if err != nil {
			logger.Errorw("gateway_adapter_build_failed",
				"gateway_type", gc.GatewayType,
				"error", err,
			)
			continue
		}
		c.Registry.Register(adapter)
		logger.Infow("gateway_adapter_registered", "gateway_type", gc.GatewayType)
	}
	return nil
}

func buildAdapter(gc *models.GatewayConfig) (gateway.Adapter, error) {
	switch gc.GatewayType {
	case constants.GatewayOrangeMoney:
		cfg, err := orangemoney.ParseConfig(gc.Settings)
		if err != nil {
			return nil, err
		}
		return orangemoney.New(cfg)
	case constants.GatewayAfrimoney:
		cfg, err := afrimoney.ParseConfig(gc.Settings)
		if err != nil {
			return nil, err
		}
		return afrimoney.New(cfg)
	case constants.GatewayBankTransfer:
		cfg, err := bank.ParseConfig(gc.Settings)
		if err != nil {
			return nil, err
		}
		return bank.New(cfg)
	case constants.GatewayCard:
		cfg, err := card.ParseConfig(gc.Settings)
		if err != nil {
			return nil, err
		}
		return card.New(cfg)
	case constants.GatewayCash:
		cfg, err := cash.ParseConfig(gc.Settings)
		if err != nil {
			return nil, err
		}
		return cash.New(cfg)
	default:
		return nil, fmt.Errorf("unknown gateway type %q", gc.GatewayType)
	}
}

// Close releases external connections.
func (c *Container) Close() {
	if c.Queue != nil {
		if err := c.Queue.Close(); err != nil {
			logger.Warnw("queue_close_failed", "error", err)
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			logger.Warnw("redis_close_failed", "error", err)
		}
	}
}
