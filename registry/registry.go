// Package registry tracks the gateway instances a dashboard may connect to.
//
// A single configured URL is the common case (StaticRegistry). Deployments that run
// several gateways publish them in etcd instead (EtcdRegistry), and the client picks one
// per call through a loadbalance.Balancer.
package registry

import "context"

// Instance is one reachable gateway.
type Instance struct {
	Addr    string `json:"addr"`    // ws://, wss:// or tcp:// URL
	Weight  int    `json:"weight"`  // relative share for weighted balancing
	Version string `json:"version"` // gateway build, informational
}

type Registry interface {
	Register(ctx context.Context, name string, instance Instance, ttl int64) error
	Deregister(ctx context.Context, name string, addr string) error
	Discover(ctx context.Context, name string) ([]Instance, error)
	Watch(ctx context.Context, name string) <-chan []Instance
}
