// Package main provides the entry point for the p2p node.
// It loads configuration, builds the service tree rooted at the node and
// cancels it on SIGINT or SIGTERM.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/cmatc13/p2pservice/internal/node"
	"github.com/cmatc13/p2pservice/internal/nodekey"
	"github.com/cmatc13/p2pservice/internal/status"
	"github.com/cmatc13/p2pservice/pkg/config"
	"github.com/cmatc13/p2pservice/pkg/logging"
	"github.com/cmatc13/p2pservice/pkg/metrics"
)

func main() {
	fs := pflag.NewFlagSet("p2pnode", pflag.ExitOnError)
	config.BindFlags(fs)
	tokenTTL := fs.Duration("print-admin-token", 0, "print an admin API token valid for the given duration and exit")
	_ = fs.Parse(os.Args[1:])

	opts := config.DefaultLoadOptions()
	opts.ConfigFile, _ = fs.GetString("config")
	opts.EnvFile, _ = fs.GetString("env-file")
	opts.Flags = fs

	cfg, err := config.LoadWithOptions(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(logging.Config{
		Level:       logging.ParseLevel(cfg.Log.Level),
		Output:      os.Stdout,
		ServiceName: cfg.Node.Name,
		Environment: cfg.Log.Environment,
	})

	key, created, err := nodekey.LoadOrCreate(cfg.Node.KeyFile)
	if err != nil {
		logger.WithError(err).Error("Failed to load node key", "path", cfg.Node.KeyFile)
		os.Exit(1)
	}
	if created {
		logger.Info("Generated new node key", "path", cfg.Node.KeyFile)
	}

	m := metrics.New(metrics.Config{Namespace: cfg.Metrics.Namespace})

	var store status.Store
	if cfg.Status.Enabled {
		store = status.NewRedisStore(status.RedisConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Key:      cfg.Status.Key,
			TTL:      cfg.Status.TTL,
		})
	}

	n := node.New(cfg, key, store, logger, m)

	if *tokenTTL > 0 {
		token, err := n.Admin().IssueToken("p2pnode-cli", *tokenTTL)
		if err != nil {
			logger.WithError(err).Error("Failed to issue admin token")
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		if err := n.Service().Run(nil); err != nil {
			logger.WithError(err).Error("Node failed to start")
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down gracefully...", "grace", cfg.Node.GracePeriod.String())
	case <-finished:
		return
	}

	// A second signal abandons the grace period.
	stop()
	forced, cancelForced := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancelForced()

	if err := n.Cancel(forced); err != nil {
		logger.WithError(err).Warn("Node did not finish cleanup")
		os.Exit(1)
	}

	select {
	case <-finished:
	case <-time.After(time.Second):
	}
	logger.Info("Shutdown complete")
}
