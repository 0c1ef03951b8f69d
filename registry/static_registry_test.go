package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticRegistry(t *testing.T) {
	ctx := context.Background()
	reg := NewStaticRegistry("openclaw", "ws://gw-a:18789")

	instances, err := reg.Discover(ctx, "openclaw")
	require.NoError(t, err)
	require.Equal(t, []Instance{{Addr: "ws://gw-a:18789", Weight: 1}}, instances)

	require.NoError(t, reg.Register(ctx, "openclaw", Instance{Addr: "ws://gw-b:18789", Weight: 3}, 0))
	require.NoError(t, reg.Register(ctx, "openclaw", Instance{Addr: "ws://gw-a:18789", Weight: 2}, 0))

	instances, _ = reg.Discover(ctx, "openclaw")
	require.Len(t, instances, 2)
	assert.Equal(t, 2, instances[0].Weight, "re-registering should update in place")

	require.NoError(t, reg.Deregister(ctx, "openclaw", "ws://gw-a:18789"))
	instances, _ = reg.Discover(ctx, "openclaw")
	assert.Equal(t, []Instance{{Addr: "ws://gw-b:18789", Weight: 3}}, instances)

	empty, err := reg.Discover(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStaticRegistryWatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	reg := NewStaticRegistry("openclaw", "ws://gw-a:1")

	updates := reg.Watch(ctx, "openclaw")
	assert.Len(t, <-updates, 1)

	reg.Register(ctx, "openclaw", Instance{Addr: "ws://gw-b:1", Weight: 1}, 0)
	assert.Len(t, <-updates, 2)

	cancel()
	select {
	case _, ok := <-updates:
		for ok {
			_, ok = <-updates
		}
	case <-time.After(time.Second):
		t.Fatal("watch channel not closed after cancel")
	}
}
