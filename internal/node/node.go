// Package node composes the node's services into one tree rooted at the node
// service, so cancelling the node reaches every service and the node is only
// cleaned up once all of them are.
package node

import (
	"context"
	"time"

	"github.com/cmatc13/p2pservice/internal/admin"
	"github.com/cmatc13/p2pservice/internal/nodekey"
	"github.com/cmatc13/p2pservice/internal/status"
	"github.com/cmatc13/p2pservice/pkg/config"
	"github.com/cmatc13/p2pservice/pkg/health"
	"github.com/cmatc13/p2pservice/pkg/logging"
	"github.com/cmatc13/p2pservice/pkg/metrics"
	"github.com/cmatc13/p2pservice/pkg/service"
)

// Node is the root service's work.
type Node struct {
	cfg      *config.Config
	key      *nodekey.Key
	logger   *logging.Logger
	metrics  *metrics.Metrics
	services *service.Registry
	health   *health.Registry

	service   *service.Service
	admin     *admin.Server
	publisher *status.Publisher
	started   time.Time
}

// New builds the node service and its children. store may be nil to run
// without publishing status.
func New(cfg *config.Config, key *nodekey.Key, store status.Store, logger *logging.Logger, m *metrics.Metrics) *Node {
	logger = logger.ForNode(key.ID().TerminalString(), cfg.Node.Name)
	n := &Node{
		cfg:      cfg,
		key:      key,
		logger:   logger,
		metrics:  m,
		services: service.NewRegistry(logger),
		health:   health.NewRegistry(logger),
	}
	n.service = service.New(n, nil, n.options(cfg.Node.Name)...)
	token := n.service.CancelToken()

	n.admin = admin.NewServer(admin.Config{
		Address:            cfg.Admin.Address,
		JWTSecret:          cfg.Admin.JWTSecret,
		CORSAllowedOrigins: cfg.Admin.CORSAllowedOrigins,
		RateLimit:          cfg.Admin.RateLimit,
		RateWindow:         cfg.Admin.RateWindow,
		ShutdownTimeout:    cfg.Admin.ShutdownTimeout,
		NodeID:             key.ID().String(),
		NodeName:           cfg.Node.Name,
	}, n.services, n.health, m, token, n.options("AdminServer")...)

	if store != nil {
		n.publisher = status.NewPublisher(status.Config{
			NodeName: cfg.Node.Name,
			Interval: cfg.Status.Interval,
			Metrics:  m,
		}, key, store, n.services, token, n.options("StatusPublisher")...)
		n.health.Register("redis", health.RedisChecker(cfg.Redis.Address, store.Ping))
	}

	return n
}

func (n *Node) options(name string) []service.Option {
	return []service.Option{
		service.WithName(name),
		service.WithLogger(n.logger),
		service.WithMetrics(n.metrics),
		service.WithGracePeriod(n.cfg.Node.GracePeriod),
	}
}

// Service returns the root service.
func (n *Node) Service() *service.Service {
	return n.service
}

// Admin returns the admin API server.
func (n *Node) Admin() *admin.Server {
	return n.admin
}

// Publisher returns the status publisher, nil when running without a store.
func (n *Node) Publisher() *status.Publisher {
	return n.publisher
}

// Services returns the registry of every service in the tree.
func (n *Node) Services() *service.Registry {
	return n.services
}

// Health returns the health check registry.
func (n *Node) Health() *health.Registry {
	return n.health
}

// ID returns the node ID.
func (n *Node) ID() nodekey.ID {
	return n.key.ID()
}

// Cancel cancels the whole tree and waits for it within the grace period.
func (n *Node) Cancel(ctx context.Context) error {
	return n.service.Cancel(ctx)
}

// Run starts the children and then waits for cancellation.
func (n *Node) Run(ctx context.Context) error {
	logger := n.service.Logger()
	n.started = time.Now()
	n.metrics.RecordUptime(ctx.Done())

	children := []*service.Service{n.admin.Service()}
	if n.publisher != nil {
		children = append(children, n.publisher.Service())
	}

	for _, svc := range append([]*service.Service{n.service}, children...) {
		if err := n.services.Register(svc); err != nil {
			return err
		}
		n.health.Register(svc.Name(), health.ServiceChecker(svc))
	}
	for _, child := range children {
		if err := n.service.RunChild(child); err != nil {
			return err
		}
	}

	logger.Info("Node started",
		"id", n.key.ID().String(),
		"short_id", n.key.ID().TerminalString(),
		"services", len(children),
	)

	_, err := service.WaitFirst[struct{}](n.service, nil, 0)
	return err
}

// Cleanup runs once every child has been asked to stop; the children's own
// cleanup is awaited by the node service.
func (n *Node) Cleanup() error {
	n.service.Logger().Info("Node stopped", "uptime", time.Since(n.started).Round(time.Millisecond).String())
	return nil
}
