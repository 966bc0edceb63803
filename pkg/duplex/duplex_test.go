package duplex

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, register func(s *CommandServer)) *Client {
	t.Helper()

	s := NewCommandServer("127.0.0.1:0", nil, nil)
	register(s)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})

	client, err := Dial(s.Addr(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	client := startServer(t, func(s *CommandServer) {
		s.Handle(7, func(ctx context.Context, conn *Conn, payload json.RawMessage) (any, error) {
			var in struct {
				Name string `json:"name"`
			}
			require.NoError(t, json.Unmarshal(payload, &in))
			return map[string]string{"greeting": "hello " + in.Name}, nil
		})
	})

	resp, err := client.Send(context.Background(), 7, map[string]string{"name": "world"})
	require.NoError(t, err)

	var out struct {
		Greeting string `json:"greeting"`
	}
	require.NoError(t, json.Unmarshal(resp, &out))
	require.Equal(t, "hello world", out.Greeting)
}

func TestUnknownCommand(t *testing.T) {
	t.Parallel()

	client := startServer(t, func(s *CommandServer) {})

	resp, err := client.Send(context.Background(), 99, nil)
	require.NoError(t, err)

	var ep ErrorPayload
	require.NoError(t, json.Unmarshal(resp, &ep))
	require.Equal(t, "Unknown command: 99", ep.Error)
}

func TestHandlerErrorBecomesErrorPayload(t *testing.T) {
	t.Parallel()

	client := startServer(t, func(s *CommandServer) {
		s.Handle(1, func(ctx context.Context, conn *Conn, payload json.RawMessage) (any, error) {
			return nil, errors.New("User does not exist")
		})
	})

	resp, err := client.Send(context.Background(), 1, nil)
	require.NoError(t, err)

	var ep ErrorPayload
	require.NoError(t, json.Unmarshal(resp, &ep))
	require.Equal(t, "User does not exist", ep.Error)
}

func TestHandlerPanicIsContained(t *testing.T) {
	t.Parallel()

	client := startServer(t, func(s *CommandServer) {
		s.Handle(2, func(ctx context.Context, conn *Conn, payload json.RawMessage) (any, error) {
			panic("boom")
		})
		s.Handle(3, func(ctx context.Context, conn *Conn, payload json.RawMessage) (any, error) {
			return map[string]bool{"ok": true}, nil
		})
	})

	resp, err := client.Send(context.Background(), 2, nil)
	require.NoError(t, err)

	var ep ErrorPayload
	require.NoError(t, json.Unmarshal(resp, &ep))
	require.Equal(t, "Internal server error", ep.Error)

	// The connection survives the panic.
	resp, err = client.Send(context.Background(), 3, nil)
	require.NoError(t, err)
	require.JSONEq(t, `{"ok":true}`, string(resp))
}

func TestConcurrentRequestsOnOneConnection(t *testing.T) {
	t.Parallel()

	client := startServer(t, func(s *CommandServer) {
		s.Handle(5, func(ctx context.Context, conn *Conn, payload json.RawMessage) (any, error) {
			var in struct {
				N int `json:"n"`
			}
			require.NoError(t, json.Unmarshal(payload, &in))
			time.Sleep(time.Duration(in.N%3) * time.Millisecond)
			return map[string]int{"n": in.N}, nil
		})
	})

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := client.Send(context.Background(), 5, map[string]int{"n": i})
			require.NoError(t, err)

			var out struct {
				N int `json:"n"`
			}
			require.NoError(t, json.Unmarshal(resp, &out))
			require.Equal(t, i, out.N)
		}()
	}
	wg.Wait()
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Parallel()

	cfg := RateLimitConfig{RequestsPerWindow: 2, Window: time.Minute, Burst: 2}
	client := startServer(t, func(s *CommandServer) {
		s.Handle(0, func(ctx context.Context, conn *Conn, payload json.RawMessage) (any, error) {
			return map[string]bool{"ok": true}, nil
		}, RateLimit(cfg))
	})

	for i := 0; i < 2; i++ {
		resp, err := client.Send(context.Background(), 0, nil)
		require.NoError(t, err)
		require.JSONEq(t, `{"ok":true}`, string(resp))
	}

	resp, err := client.Send(context.Background(), 0, nil)
	require.NoError(t, err)

	var ep ErrorPayload
	require.NoError(t, json.Unmarshal(resp, &ep))
	require.Equal(t, "Too many requests", ep.Error)
}
