package duplex

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/coralstack/coraldb/pkg/idx"
	"github.com/coralstack/coraldb/pkg/slogx"
)

// maxFrameBytes bounds a single request frame. Oversized frames kill the
// connection rather than the process.
const maxFrameBytes = 8 << 20

// Conn identifies the peer a request arrived on. Handlers receive it for
// observability; it carries no authentication state.
type Conn struct {
	// ID is unique per accepted connection.
	ID string
	// RemoteAddr is the peer's address in host:port form.
	RemoteAddr string

	mu  sync.Mutex // guards writes to enc
	enc *json.Encoder
}

// RemoteHost returns the peer address without the port.
func (c *Conn) RemoteHost() string {
	host, _, err := net.SplitHostPort(c.RemoteAddr)
	if err != nil {
		return c.RemoteAddr
	}
	return host
}

func (c *Conn) write(resp response) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enc.Encode(resp)
}

// Handler processes one command payload and returns the success payload.
// A returned error is translated to an ErrorPayload; it never tears down
// the connection.
type Handler func(ctx context.Context, conn *Conn, payload json.RawMessage) (any, error)

// Middleware wraps a Handler.
type Middleware func(Handler) Handler

// CommandServer accepts persistent client connections and dispatches
// numbered commands to registered handlers. Requests on one connection are
// handled concurrently; each receives exactly one response carrying the
// request id.
type CommandServer struct {
	addr      string
	tlsConfig *tls.Config
	logger    *slog.Logger

	mu       sync.RWMutex
	handlers map[uint8]Handler

	listener net.Listener
	ready    chan struct{}
	conns    sync.WaitGroup
}

// NewCommandServer creates a server that will listen on addr. A non-nil
// tlsConfig enables TLS on the listener.
func NewCommandServer(addr string, tlsConfig *tls.Config, logger *slog.Logger) *CommandServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandServer{
		addr:      addr,
		tlsConfig: tlsConfig,
		logger:    logger.With("module", "duplex"),
		handlers:  make(map[uint8]Handler),
		ready:     make(chan struct{}),
	}
}

// Handle registers the handler for a command number, applying middlewares
// outermost-first. Registering the same number twice panics; the command
// table is fixed at startup.
func (s *CommandServer) Handle(cmd uint8, h Handler, mws ...Middleware) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.handlers[cmd]; dup {
		panic(fmt.Sprintf("duplex: command %d registered twice", cmd))
	}
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	s.handlers[cmd] = h
}

// Addr returns the bound listener address. It blocks until Run has opened
// the listener, which makes ":0" usable in tests.
func (s *CommandServer) Addr() string {
	<-s.ready
	return s.listener.Addr().String()
}

// Run listens and serves until ctx is cancelled, then closes the listener
// and waits for in-flight connections to drain.
func (s *CommandServer) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("duplex: listen %s: %w", s.addr, err)
	}
	if s.tlsConfig != nil {
		listener = tls.NewListener(listener, s.tlsConfig)
	}
	s.listener = listener
	close(s.ready)

	go func() {
		<-ctx.Done()
		s.logger.Info("stopping command server")
		_ = listener.Close()
	}()

	s.logger.Info("command server listening", "addr", listener.Addr().String(), "tls", s.tlsConfig != nil)

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.conns.Wait()
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("duplex: accept: %w", err)
		}

		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			s.serveConn(ctx, conn)
		}()
	}
}

func (s *CommandServer) serveConn(ctx context.Context, netConn net.Conn) {
	defer netConn.Close()

	conn := &Conn{
		ID:         idx.New().String(),
		RemoteAddr: netConn.RemoteAddr().String(),
		enc:        json.NewEncoder(netConn),
	}

	log := s.logger.With("conn_id", conn.ID, "peer", conn.RemoteAddr)
	log.Debug("connection accepted")

	// Close the connection when the server shuts down so blocked reads
	// unwind.
	stop := context.AfterFunc(ctx, func() { _ = netConn.Close() })
	defer stop()

	var requests sync.WaitGroup
	defer requests.Wait()

	scanner := bufio.NewScanner(netConn)
	scanner.Buffer(make([]byte, 64<<10), maxFrameBytes)

	for scanner.Scan() {
		var req request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			log.Warn("dropping malformed frame", "error", err)
			continue
		}

		requests.Add(1)
		go func() {
			defer requests.Done()
			s.dispatch(ctx, log, conn, req)
		}()
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
		log.Debug("connection read ended", "error", err)
	}
	log.Debug("connection closed")
}

func (s *CommandServer) dispatch(ctx context.Context, log *slog.Logger, conn *Conn, req request) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("handler panic", "cmd", req.Cmd, "panic", r)
			s.reply(log, conn, req.ID, ErrorPayload{Error: "Internal server error"})
		}
	}()

	s.mu.RLock()
	handler, ok := s.handlers[req.Cmd]
	s.mu.RUnlock()

	if !ok {
		s.reply(log, conn, req.ID, ErrorPayload{Error: fmt.Sprintf("Unknown command: %d", req.Cmd)})
		return
	}

	ctx = slogx.WithPeer(ctx, conn.RemoteAddr)

	result, err := handler(ctx, conn, req.Payload)
	if err != nil {
		s.reply(log, conn, req.ID, ErrorPayload{Error: err.Error()})
		return
	}
	s.reply(log, conn, req.ID, result)
}

func (s *CommandServer) reply(log *slog.Logger, conn *Conn, id uint64, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Error("failed to encode response payload", "error", err)
		raw, _ = json.Marshal(ErrorPayload{Error: "Internal server error"})
	}
	if err := conn.write(response{ID: id, Payload: raw}); err != nil {
		log.Debug("failed to write response", "error", err)
	}
}
