// Package status periodically publishes a snapshot of the node's services to
// an external store so operators can watch a node without reaching its
// admin API.
package status

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/cmatc13/p2pservice/internal/nodekey"
	"github.com/cmatc13/p2pservice/pkg/cancel"
	"github.com/cmatc13/p2pservice/pkg/errors"
	"github.com/cmatc13/p2pservice/pkg/metrics"
	"github.com/cmatc13/p2pservice/pkg/service"
)

// Snapshot is the published view of a node.
type Snapshot struct {
	NodeID    string                    `json:"node_id"`
	NodeName  string                    `json:"node_name"`
	PublicKey string                    `json:"public_key,omitempty"`
	Timestamp time.Time                 `json:"timestamp"`
	Services  map[string]service.Status `json:"services"`
	// Signature is the hex DER signature over the snapshot encoded with an
	// empty Signature.
	Signature string `json:"signature,omitempty"`
}

// Verify checks the snapshot's signature against its public key.
func (s Snapshot) Verify() (bool, error) {
	if s.Signature == "" || s.PublicKey == "" {
		return false, nil
	}
	sig, err := hex.DecodeString(s.Signature)
	if err != nil {
		return false, errors.Wrap(err, "malformed signature")
	}
	pub, err := hex.DecodeString(s.PublicKey)
	if err != nil {
		return false, errors.Wrap(err, "malformed public key")
	}

	unsigned := s
	unsigned.Signature = ""
	payload, err := json.Marshal(unsigned)
	if err != nil {
		return false, err
	}
	return nodekey.Verify(pub, payload, sig)
}

// Source provides the service statuses to snapshot.
type Source interface {
	Statuses() map[string]service.Status
}

// DefaultInterval is used when Config.Interval is not positive.
const DefaultInterval = 10 * time.Second

// Config configures a Publisher.
type Config struct {
	NodeName string
	// Interval between publishes.
	Interval time.Duration
	// Timeout bounds each publish.
	Timeout time.Duration
	Metrics *metrics.Metrics
}

// Publisher is the work of the status service: publish, then sleep for the
// interval, until cancelled.
type Publisher struct {
	cfg     Config
	key     *nodekey.Key
	store   Store
	source  Source
	service *service.Service

	published atomic.Int64
	failures  atomic.Int64
}

// NewPublisher creates a publisher and the Service hosting it, chained from
// parent. key may be nil, in which case snapshots are unsigned and carry no
// node ID.
func NewPublisher(cfg Config, key *nodekey.Key, store Store, source Source, parent *cancel.Token, opts ...service.Option) *Publisher {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Timeout <= 0 || cfg.Timeout > cfg.Interval {
		cfg.Timeout = cfg.Interval
	}
	p := &Publisher{
		cfg:    cfg,
		key:    key,
		store:  store,
		source: source,
	}
	opts = append([]service.Option{service.WithName("StatusPublisher")}, opts...)
	p.service = service.New(p, parent, opts...)
	return p
}

// Service returns the Service hosting the publisher.
func (p *Publisher) Service() *service.Service {
	return p.service
}

// Published returns how many snapshots were stored successfully.
func (p *Publisher) Published() int64 {
	return p.published.Load()
}

// Failures returns how many publishes failed.
func (p *Publisher) Failures() int64 {
	return p.failures.Load()
}

// Snapshot builds the current snapshot, signed when the publisher has a key.
func (p *Publisher) Snapshot() (Snapshot, error) {
	snapshot := Snapshot{
		NodeName:  p.cfg.NodeName,
		Timestamp: time.Now().UTC(),
		Services:  p.source.Statuses(),
	}
	if p.key == nil {
		return snapshot, nil
	}

	snapshot.NodeID = p.key.ID().String()
	snapshot.PublicKey = hex.EncodeToString(p.key.PublicKey())
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return snapshot, errors.StorageWrapWithCode(err, errors.OpSerialize, errors.StorageErrSerialization,
			"failed to encode status snapshot")
	}
	snapshot.Signature = hex.EncodeToString(p.key.Sign(payload))
	return snapshot, nil
}

// Run publishes every interval until ctx is done. Publish failures are logged
// and retried on the next tick.
func (p *Publisher) Run(ctx context.Context) error {
	logger := p.service.Logger()
	logger.Info("Status publisher started", "interval", p.cfg.Interval.String())

	for {
		p.publish(ctx)
		// The zero-operation wait: sleep unless cancelled first.
		if err := service.Sleep(p.service, p.cfg.Interval); err != nil {
			return err
		}
	}
}

func (p *Publisher) publish(ctx context.Context) {
	logger := p.service.Logger()

	snapshot, err := p.Snapshot()
	if err == nil {
		publishCtx, cancelPublish := context.WithTimeout(ctx, p.cfg.Timeout)
		err = p.store.Publish(publishCtx, snapshot)
		cancelPublish()
	}
	if err != nil && ctx.Err() != nil {
		// Interrupted by shutdown, not a store failure.
		return
	}

	p.cfg.Metrics.RecordPublish(err)
	if err != nil {
		p.failures.Add(1)
		logger.WithError(err).Warn(failureMessage(err))
		return
	}
	p.published.Add(1)
	logger.Debug("Published status snapshot", "services", len(snapshot.Services))
}

func failureMessage(err error) string {
	switch {
	case errors.IsStorageError(err, errors.StorageErrConnection):
		return "Status store unreachable"
	case errors.IsStorageError(err, errors.StorageErrSerialization):
		return "Failed to encode status snapshot"
	default:
		return "Failed to publish status snapshot"
	}
}

// Cleanup closes the store.
func (p *Publisher) Cleanup() error {
	if err := p.store.Close(); err != nil {
		return errors.StorageWrapWithCode(err, errors.OpClose, errors.StorageErrConnection,
			"failed to close status store")
	}
	return nil
}
