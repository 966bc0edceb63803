package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToNamedAndWildcard(t *testing.T) {
	t.Parallel()

	b := NewBus()
	auth := b.Subscribe("auth")
	all := b.Subscribe("")

	b.Publish(Event{Name: "auth", RemoteAddr: "1.2.3.4:5"})
	b.Publish(Event{Name: "query"})

	select {
	case e := <-auth:
		require.Equal(t, "auth", e.Name)
		require.Equal(t, "1.2.3.4:5", e.RemoteAddr)
	case <-time.After(time.Second):
		t.Fatal("auth subscriber got nothing")
	}

	require.Equal(t, "auth", (<-all).Name)
	require.Equal(t, "query", (<-all).Name)

	select {
	case e := <-auth:
		t.Fatalf("auth subscriber got unexpected event %q", e.Name)
	default:
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	t.Parallel()

	b := NewBus()
	_ = b.Subscribe("query") // never drained

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			b.Publish(Event{Name: "query"})
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestPublishWithoutSubscribers(t *testing.T) {
	t.Parallel()

	NewBus().Publish(Event{Name: "auth"})
}
