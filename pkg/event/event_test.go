package event

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPublishReachesSubscriber(t *testing.T) {
	bus := NewManager()
	received := make(chan any, 1)

	bus.Subscribe(ScanResult, func(ctx context.Context, data any) {
		received <- data
	})
	bus.Publish(context.Background(), ScanResult, "payload")

	select {
	case data := <-received:
		require.Equal(t, "payload", data)
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}
}

func TestPublishFansOutToAllHandlers(t *testing.T) {
	bus := NewManager()
	var wg sync.WaitGroup
	wg.Add(2)

	for i := 0; i < 2; i++ {
		bus.Subscribe(ScanProgress, func(ctx context.Context, data any) {
			wg.Done()
		})
	}
	bus.Publish(context.Background(), ScanProgress, nil)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("not all handlers were invoked")
	}
}

func TestPublishWithoutSubscribersIsNoOp(t *testing.T) {
	bus := NewManager()
	require.NotPanics(t, func() {
		bus.Publish(context.Background(), "nobody.listens", nil)
	})
}

func TestPublishDoesNotBlockOnSlowHandler(t *testing.T) {
	bus := NewManager()
	release := make(chan struct{})

	bus.Subscribe(ScanStarted, func(ctx context.Context, data any) {
		<-release
	})

	start := time.Now()
	bus.Publish(context.Background(), ScanStarted, nil)
	require.Less(t, time.Since(start), 500*time.Millisecond)
	close(release)
}
