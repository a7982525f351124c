package app

import (
	"context"
	"fmt"
	"time"

	"bridge-backend/internal/clients"
	"bridge-backend/internal/config"
	"bridge-backend/internal/events"
	"bridge-backend/internal/handlers"
	"bridge-backend/internal/models"
	"bridge-backend/internal/router"
	"bridge-backend/internal/services"

	"github.com/sirupsen/logrus"
)

// defaultViewTTL applies to queries without a configured refresh interval
const defaultViewTTL = 30 * time.Second

// ServiceContainer owns every long-lived component of the process
type ServiceContainer struct {
	Config *config.Config
	Logger *logrus.Logger

	// Chains
	Registry *clients.ChainRegistry

	// Engine
	Cache      *services.ViewCache
	Paginator  *services.LedgerPaginator
	Fetcher    *services.BatchFetcher
	Metadata   *services.MetadataResolver
	Correlator *services.Correlator
	Views      *services.BridgeViewService
	Actions    *services.ActionService
	Scheduler  *services.RefreshScheduler

	// Events & push
	NATSClient *clients.NATSClient
	Bus        *events.Bus
	Push       *services.ViewPushService
}

// NewServiceContainer dials the configured chains and wires the engine.
// Unreachable chains and a missing NATS server degrade the container
// rather than failing it.
func NewServiceContainer(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*ServiceContainer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	logger.Info("🚀 Initializing Service Container...")

	c := &ServiceContainer{Config: cfg, Logger: logger}

	// 1. Chains
	clientMap := clients.DialChainClients(ctx, cfg, logger)
	c.Registry = clients.NewChainRegistry(clients.DescriptorsFromConfig(cfg), clientMap)
	logger.Infof("✅ Chain registry ready: %d configured, %d reachable", len(c.Registry.Descriptors()), len(clientMap))

	// 2. Engine
	c.initEngine()

	// 3. Events (optional)
	if err := c.initEventServices(); err != nil {
		logger.WithError(err).Warn("⚠️ Event services disabled")
	}

	// 4. Actions and refresh
	c.initActions()
	c.initScheduler()

	logger.Info("✅ Service Container initialized")
	return c, nil
}

func (c *ServiceContainer) initEngine() {
	cfg := c.Config
	c.Cache = services.NewViewCache(services.TTLsFromConfig(cfg.Refresh), defaultViewTTL)
	c.Paginator = services.NewLedgerPaginator(cfg.Ledger, c.Logger)
	c.Fetcher = services.NewBatchFetcher(c.Logger)

	var tokenList services.TokenLister
	if cfg.TokenList.URL != "" || cfg.TokenList.Path != "" {
		tokenList = clients.NewTokenListClient(cfg.TokenList, 0)
	}
	c.Metadata = services.NewMetadataResolver(c.Registry, tokenList, c.Cache, c.Logger)
	c.Correlator = services.NewCorrelator(c.Registry, c.Paginator, c.Fetcher, c.Cache, c.Metadata, c.Logger)
	c.Views = services.NewBridgeViewService(c.Registry, c.Paginator, c.Fetcher, c.Correlator, c.Metadata, c.Cache, cfg.Ledger, c.Logger)
	c.Push = services.NewViewPushService(c.Logger)
}

// initEventServices connects NATS when a URL is configured
func (c *ServiceContainer) initEventServices() error {
	if c.Config.NATS.URL == "" {
		c.Bus = events.NewBus(nil, c.Logger)
		return fmt.Errorf("NATS not configured")
	}

	natsClient, err := clients.NewNATSClient(c.Config.NATS, c.Logger)
	if err != nil {
		c.Bus = events.NewBus(nil, c.Logger)
		return fmt.Errorf("failed to initialize NATS client: %w", err)
	}
	c.NATSClient = natsClient
	c.Bus = events.NewBus(natsClient, c.Logger)

	if err := c.Bus.OnRemoteAction(func(result models.ActionResult) {
		n := c.Views.ApplyAction(result)
		c.Push.ActionConfirmed(result)
		c.Logger.WithFields(logrus.Fields{
			"action":      result.Action,
			"chain_id":    result.ChainID,
			"invalidated": n,
		}).Info("📨 Applied action from sibling instance")
	}); err != nil {
		return fmt.Errorf("subscribe remote actions: %w", err)
	}
	return nil
}

func (c *ServiceContainer) initActions() {
	receiptTimeout := time.Duration(c.Config.Operator.ReceiptTimeout) * time.Second
	c.Actions = services.NewActionService(c.Views, c.Fetcher, actionFanOut{bus: c.Bus, push: c.Push}, receiptTimeout, c.Logger)
}

func (c *ServiceContainer) initScheduler() {
	c.Scheduler = services.NewRefreshScheduler(services.ViewRefreshTasks(c.Views, c.Config.Refresh), c.Logger)
	c.Scheduler.OnRefresh(c.Bus.ViewRefreshed)
	c.Scheduler.OnRefresh(c.Push.ViewRefreshed)

	watched := c.Config.Refresh.WatchedChains
	if len(watched) == 0 {
		for _, d := range c.Registry.Descriptors() {
			if c.Registry.Available(d.ChainID) {
				watched = append(watched, d.ChainID)
			}
		}
	}
	for _, chainID := range watched {
		c.Scheduler.Watch(chainID)
	}
	c.Logger.WithField("chains", watched).Info("🔄 Refresh scheduler started")
}

// Handlers builds the HTTP handlers over the container's services
func (c *ServiceContainer) Handlers() router.Handlers {
	var natsChecker handlers.ConnectionChecker
	if c.NATSClient != nil {
		natsChecker = c.NATSClient
	}
	return router.Handlers{
		Views:     handlers.NewBridgeViewHandler(c.Views, c.Metadata, c.Logger),
		Actions:   handlers.NewActionHandler(c.Actions, c.Views, c.Scheduler, c.Logger),
		WebSocket: handlers.NewWebSocketHandler(c.Push, c.Logger),
		Health:    handlers.NewHealthHandler(c.Registry, natsChecker),
	}
}

// Cleanup stops background work and closes connections
func (c *ServiceContainer) Cleanup() {
	c.Logger.Info("🧹 Cleaning up Service Container...")

	if c.Scheduler != nil {
		c.Scheduler.Stop()
	}
	if c.NATSClient != nil {
		c.NATSClient.Close()
	}

	c.Logger.Info("✅ Service Container cleaned up")
}

// actionFanOut delivers a locally confirmed action to siblings and to
// websocket clients
type actionFanOut struct {
	bus  *events.Bus
	push *services.ViewPushService
}

func (f actionFanOut) PublishActionConfirmed(result models.ActionResult) error {
	f.push.ActionConfirmed(result)
	return f.bus.PublishActionConfirmed(result)
}
