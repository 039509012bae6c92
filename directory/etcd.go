package directory

import (
	"context"
	"encoding/json"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

// fleetPrefix is where servers live in etcd:
//
//	Key:   /tilebridge/servers/{Addr}
//	Value: JSON-encoded ServerInfo
const fleetPrefix = "/tilebridge/servers/"

// Etcd implements Directory over etcd v3.
//
// Announcements use TTL-based leases with background KeepAlive: if the server
// process dies, the lease expires and the entry vanishes on its own, so the
// fleet never accumulates ghost servers.
type Etcd struct {
	client *clientv3.Client // thread-safe, shared across goroutines
	logger *zap.Logger

	// ctx anchors the background goroutines (watch, keepalive drain);
	// Close cancels it so they terminate even with no consumer left.
	ctx    context.Context
	cancel context.CancelFunc
}

// NewEtcd connects to the given etcd endpoints. Pass nil for logger to
// discard logs.
func NewEtcd(endpoints []string, logger *zap.Logger) (*Etcd, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c, err := clientv3.New(clientv3.Config{
		Endpoints: endpoints,
	})
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Etcd{client: c, logger: logger, ctx: ctx, cancel: cancel}, nil
}

// Announce publishes a server with a TTL lease and starts KeepAlive renewal.
//
// The lease ID stays a local variable on purpose: storing it on the struct
// would race when several servers share one directory instance.
func (d *Etcd) Announce(info ServerInfo, ttlSeconds int64) error {
	ctx := context.TODO()

	lease, err := d.client.Grant(ctx, ttlSeconds)
	if err != nil {
		return err
	}

	val, err := json.Marshal(info)
	if err != nil {
		return err
	}

	_, err = d.client.Put(ctx, fleetPrefix+info.Addr, string(val), clientv3.WithLease(lease.ID))
	if err != nil {
		return err
	}

	ch, err := d.client.KeepAlive(d.ctx, lease.ID)
	if err != nil {
		return err
	}

	// Drain KeepAlive responses so the channel never fills up.
	go func() {
		for range ch {
		}
		d.logger.Warn("fleet lease keepalive stopped", zap.String("addr", info.Addr))
	}()
	return nil
}

// Retire removes a server entry. Used for graceful shutdown; crashes are
// handled by lease expiry.
func (d *Etcd) Retire(addr string) error {
	_, err := d.client.Delete(context.TODO(), fleetPrefix+addr)
	return err
}

// Servers returns every live server under the fleet prefix.
func (d *Etcd) Servers() ([]ServerInfo, error) {
	resp, err := d.client.Get(context.TODO(), fleetPrefix, clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	servers := make([]ServerInfo, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var info ServerInfo
		if err := json.Unmarshal(kv.Value, &info); err != nil {
			d.logger.Warn("skipping malformed fleet entry",
				zap.ByteString("key", kv.Key), zap.Error(err))
			continue
		}
		servers = append(servers, info)
	}
	return servers, nil
}

// Watch follows the fleet prefix and emits the full server list on any change
// (announcement, retirement, lease expiry). Re-reading the whole list is
// simpler than folding individual watch events into a local copy.
func (d *Etcd) Watch() <-chan []ServerInfo {
	ch := make(chan []ServerInfo, 1)

	go func() {
		defer close(ch)
		watchChan := d.client.Watch(d.ctx, fleetPrefix, clientv3.WithPrefix())
		for range watchChan {
			servers, err := d.Servers()
			if err != nil {
				d.logger.Warn("fleet re-read after watch event failed", zap.Error(err))
				continue
			}
			// The send must not pin the goroutine once the consumer
			// stops reading.
			select {
			case ch <- servers:
			case <-d.ctx.Done():
				return
			}
		}
	}()

	return ch
}

// Close stops the background goroutines and releases the etcd client.
func (d *Etcd) Close() error {
	d.cancel()
	return d.client.Close()
}
