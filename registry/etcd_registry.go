// etcd layout:
//
//	Key:   {prefix}/{name}/{addr}
//	Value: JSON-encoded Instance
//
// Registrations hold a TTL lease kept alive in the background, so a gateway that dies
// without deregistering disappears once the lease expires.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// DefaultPrefix is the etcd key prefix under which gateways are published.
const DefaultPrefix = "/clawdash/gateways"

// EtcdRegistry implements Registry on etcd v3.
type EtcdRegistry struct {
	client *clientv3.Client
	prefix string
}

// NewEtcdRegistry connects to the given etcd endpoints. An empty prefix means DefaultPrefix.
func NewEtcdRegistry(endpoints []string, prefix string) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("registry: connecting to etcd: %w", err)
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &EtcdRegistry{client: c, prefix: strings.TrimSuffix(prefix, "/")}, nil
}

// Close releases the etcd client.
func (r *EtcdRegistry) Close() error {
	return r.client.Close()
}

func (r *EtcdRegistry) key(name, addr string) string {
	return r.prefix + "/" + name + "/" + addr
}

func (r *EtcdRegistry) namePrefix(name string) string {
	return r.prefix + "/" + name + "/"
}

// Register publishes instance with a lease of ttl seconds and keeps the lease alive
// until ctx ends. The lease id stays local so one registry can register many instances.
func (r *EtcdRegistry) Register(ctx context.Context, name string, instance Instance, ttl int64) error {
	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return fmt.Errorf("registry: granting lease: %w", err)
	}

	val, err := json.Marshal(instance)
	if err != nil {
		return err
	}

	_, err = r.client.Put(ctx, r.key(name, instance.Addr), string(val), clientv3.WithLease(lease.ID))
	if err != nil {
		return fmt.Errorf("registry: publishing %s: %w", instance.Addr, err)
	}

	ch, err := r.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return fmt.Errorf("registry: keepalive: %w", err)
	}
	// The keepalive channel must be drained or etcd logs warnings once it fills.
	go func() {
		for range ch {
		}
	}()
	return nil
}

func (r *EtcdRegistry) Deregister(ctx context.Context, name string, addr string) error {
	if _, err := r.client.Delete(ctx, r.key(name, addr)); err != nil {
		return fmt.Errorf("registry: deregistering %s: %w", addr, err)
	}
	return nil
}

// Discover lists the instances currently published under name. Entries that fail to
// decode are skipped.
func (r *EtcdRegistry) Discover(ctx context.Context, name string) ([]Instance, error) {
	resp, err := r.client.Get(ctx, r.namePrefix(name), clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("registry: listing %s: %w", name, err)
	}

	instances := make([]Instance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var instance Instance
		if err := json.Unmarshal(kv.Value, &instance); err != nil {
			slog.Warn("skipping malformed gateway registration", "key", string(kv.Key), "error", err)
			continue
		}
		instances = append(instances, instance)
	}
	return instances, nil
}

// Watch emits the full instance list after every change under name, until ctx ends.
func (r *EtcdRegistry) Watch(ctx context.Context, name string) <-chan []Instance {
	ch := make(chan []Instance, 1)

	go func() {
		defer close(ch)
		watchChan := r.client.Watch(ctx, r.namePrefix(name), clientv3.WithPrefix())
		for range watchChan {
			// Re-list rather than apply individual events; the sets are tiny.
			instances, err := r.Discover(ctx, name)
			if err != nil {
				continue
			}
			select {
			case ch <- instances:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch
}
