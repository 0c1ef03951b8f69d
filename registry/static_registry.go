package registry

import (
	"context"
	"sync"
)

// StaticRegistry is an in-memory Registry, seeded from configuration. TTLs are ignored.
type StaticRegistry struct {
	mu        sync.Mutex
	instances map[string][]Instance
	watchers  map[string][]chan []Instance
}

// NewStaticRegistry registers addrs under name with weight 1.
func NewStaticRegistry(name string, addrs ...string) *StaticRegistry {
	r := &StaticRegistry{
		instances: make(map[string][]Instance),
		watchers:  make(map[string][]chan []Instance),
	}
	for _, addr := range addrs {
		r.instances[name] = append(r.instances[name], Instance{Addr: addr, Weight: 1})
	}
	return r
}

func (r *StaticRegistry) Register(ctx context.Context, name string, instance Instance, ttl int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.instances[name]
	for i, existing := range list {
		if existing.Addr == instance.Addr {
			list[i] = instance
			r.notifyLocked(name)
			return nil
		}
	}
	r.instances[name] = append(list, instance)
	r.notifyLocked(name)
	return nil
}

func (r *StaticRegistry) Deregister(ctx context.Context, name string, addr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.instances[name]
	for i, inst := range list {
		if inst.Addr == addr {
			r.instances[name] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	r.notifyLocked(name)
	return nil
}

func (r *StaticRegistry) Discover(ctx context.Context, name string) ([]Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Instance(nil), r.instances[name]...), nil
}

// Watch emits the current list immediately and again after every change, until ctx ends.
func (r *StaticRegistry) Watch(ctx context.Context, name string) <-chan []Instance {
	ch := make(chan []Instance, 1)
	r.mu.Lock()
	r.watchers[name] = append(r.watchers[name], ch)
	ch <- append([]Instance(nil), r.instances[name]...)
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		defer r.mu.Unlock()
		watchers := r.watchers[name]
		for i, w := range watchers {
			if w == ch {
				r.watchers[name] = append(watchers[:i:i], watchers[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch
}

// notifyLocked replaces any unread snapshot with the newest one.
func (r *StaticRegistry) notifyLocked(name string) {
	snapshot := append([]Instance(nil), r.instances[name]...)
	for _, ch := range r.watchers[name] {
		select {
		case <-ch:
		default:
		}
		ch <- snapshot
	}
}
