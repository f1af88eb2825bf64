package services

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/roadpulse/server/internal/cache"
	"github.com/roadpulse/server/internal/errcode"
)

func newTestGate(t *testing.T) (*miniredis.Miniredis, *cache.Client, *cache.Gate) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := cache.New(context.Background(), mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return mr, c, cache.NewGate(c, zap.NewNop())
}

func assertCode(t *testing.T, err error, code errcode.Code) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, errcode.CodeOf(err), "got error: %v", err)
}

type usageEvent struct {
	eventType string
	metadata  map[string]any
	userID    string
}

type fakeUsage struct {
	mu     sync.Mutex
	events []usageEvent
	err    error
}

func (f *fakeUsage) Append(_ context.Context, eventType string, metadata map[string]any, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, usageEvent{eventType: eventType, metadata: metadata, userID: userID})
	return nil
}

func (f *fakeUsage) byType(eventType string) []usageEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []usageEvent
	for _, e := range f.events {
		if e.eventType == eventType {
			out = append(out, e)
		}
	}
	return out
}
