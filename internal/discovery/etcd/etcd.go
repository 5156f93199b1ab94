package etcd

import (
	"context"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// Registry registers the recall service in etcd so agent-side clients
// can discover running instances.
type Registry struct {
	cli *clientv3.Client
}

// NewRegistry connects to etcd.
func NewRegistry(endpoints []string) (*Registry, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("etcd connect failed: %w", err)
	}
	return &Registry{cli: cli}, nil
}

// Register announces an instance under /<service>/<addr> on a lease and
// keeps the lease alive until the returned channel is closed.
func (r *Registry) Register(serviceName, addr string, ttl int64) (chan<- struct{}, error) {
	leaseResp, err := r.cli.Grant(context.Background(), ttl)
	if err != nil {
		return nil, fmt.Errorf("etcd lease grant failed: %w", err)
	}

	key := "/" + serviceName + "/" + addr
	if _, err := r.cli.Put(context.Background(), key, addr, clientv3.WithLease(leaseResp.ID)); err != nil {
		return nil, fmt.Errorf("etcd register failed: %w", err)
	}

	keepAliveCh, err := r.cli.KeepAlive(context.Background(), leaseResp.ID)
	if err != nil {
		return nil, fmt.Errorf("etcd keepalive failed: %w", err)
	}

	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				r.cli.Delete(context.Background(), key)
				return
			case _, ok := <-keepAliveCh:
				if !ok {
					// lease expired; etcd drops the key on its own
					return
				}
			}
		}
	}()
	return stop, nil
}

// Discover lists the registered addresses of a service.
func (r *Registry) Discover(serviceName string) ([]string, error) {
	resp, err := r.cli.Get(context.Background(), "/"+serviceName, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("etcd discover failed: %w", err)
	}
	var addrs []string
	for _, kv := range resp.Kvs {
		addrs = append(addrs, string(kv.Value))
	}
	return addrs, nil
}

// Close closes the etcd client.
func (r *Registry) Close() error {
	return r.cli.Close()
}
