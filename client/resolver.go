package client

import (
	"context"
	"fmt"

	"clawdash/loadbalance"
	"clawdash/registry"
	"clawdash/transport"
)

// Resolver decides which gateway a call connects to.
type Resolver interface {
	Resolve(ctx context.Context) (transport.Endpoint, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context) (transport.Endpoint, error)

func (f ResolverFunc) Resolve(ctx context.Context) (transport.Endpoint, error) { return f(ctx) }

// StaticResolver always returns endpoint.
func StaticResolver(endpoint transport.Endpoint) Resolver {
	return ResolverFunc(func(context.Context) (transport.Endpoint, error) {
		return endpoint, nil
	})
}

// DiscoveryResolver looks the gateway up in a registry on every call and lets the
// balancer choose among the live instances. All instances share one credential.
type DiscoveryResolver struct {
	Registry   registry.Registry
	Name       string
	Balancer   loadbalance.Balancer
	Credential string
}

func (r *DiscoveryResolver) Resolve(ctx context.Context) (transport.Endpoint, error) {
	instances, err := r.Registry.Discover(ctx, r.Name)
	if err != nil {
		return transport.Endpoint{}, err
	}
	instance, err := r.Balancer.Pick(instances)
	if err != nil {
		return transport.Endpoint{}, fmt.Errorf("%s: %w", r.Name, err)
	}
	return transport.Endpoint{Address: instance.Addr, Credential: r.Credential}, nil
}
