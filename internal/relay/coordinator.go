// Package relay implements the optional file-relay role. The coordinator
// keeps every accepted connection open; a chunk carrying the forward
// envelope is delivered locally and written verbatim to every other client.
// Which node is the relay is decided by configuration, there is no election.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"lanchat/internal/listener"
	"lanchat/internal/metrics"
	"lanchat/internal/protocol"
	"lanchat/internal/transport"
	"lanchat/internal/util/logger/sl"
)

type Coordinator struct {
	cfg       Config
	srv       *listener.Server
	onFile    Handler
	onMessage Handler
	log       *slog.Logger
	metrics   *metrics.Metrics

	mu      sync.Mutex
	clients map[*client]struct{}
}

// NewCoordinator создает роль ретранслятора. onMessage получает фрагменты
// без конверта и может быть nil.
func NewCoordinator(cfg Config, onFile, onMessage Handler, log *slog.Logger, m *metrics.Metrics) *Coordinator {
	if cfg.ReadBuffer <= 0 {
		cfg.ReadBuffer = transport.DefaultReadBuffer
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}

	c := &Coordinator{
		cfg:       cfg,
		onFile:    onFile,
		onMessage: onMessage,
		log:       log.With(slog.String("component", "relay")),
		metrics:   m,
		clients:   make(map[*client]struct{}),
	}
	c.srv = listener.New(Name, listener.Config{
		Addr:           cfg.Addr,
		MaxConnections: cfg.MaxConnections,
	}, c.handleConn, log)

	return c
}

func (c *Coordinator) Listen() error {
	return c.srv.Listen()
}

func (c *Coordinator) Addr() net.Addr {
	return c.srv.Addr()
}

func (c *Coordinator) Serve(ctx context.Context) error {
	return c.srv.Serve(ctx)
}

// Clients returns the number of connected clients.
func (c *Coordinator) Clients() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.clients)
}

// Broadcast пишет payload всем подключенным клиентам и возвращает число
// успешных записей.
func (c *Coordinator) Broadcast(payload string) int {
	return c.writeAll(nil, []byte(payload))
}

func (c *Coordinator) handleConn(_ context.Context, conn net.Conn) {
	const op = "relay.Coordinator.handleConn"

	cl := &client{conn: conn, remote: listener.RemoteHost(conn)}
	log := c.log.With(slog.String("op", op), slog.String("remote", cl.remote))

	c.add(cl)
	defer c.remove(cl)

	log.Info("relay client connected")

	err := transport.ReadChunks(conn, c.cfg.ReadBuffer, func(chunk []byte) {
		c.metrics.RecordChunk(Name, len(chunk))
		c.route(cl, chunk)
	})
	if err != nil {
		log.Debug("relay client read ended", sl.Err(err))
	}

	log.Info("relay client disconnected")
}

func (c *Coordinator) route(from *client, chunk []byte) {
	const op = "relay.Coordinator.route"

	text := string(chunk)
	if !protocol.IsForwarded(text) {
		if c.onMessage != nil {
			c.onMessage(from.remote, text)
		}
		return
	}

	inner, err := protocol.UnwrapForward(text)
	if err != nil {
		c.log.Warn("bad forward envelope", slog.String("op", op), sl.Err(err))
		return
	}
	if c.onFile != nil {
		c.onFile(from.remote, inner)
	}

	written := c.writeAll(from, chunk)
	c.metrics.RecordRelayForward(written)

	c.log.Debug("forwarded file payload",
		slog.String("op", op),
		slog.String("from", from.remote),
		slog.Int("clients", written),
	)
}

// writeAll пишет data всем клиентам, кроме skip. Набор клиентов копируется,
// запись идет без общей блокировки.
func (c *Coordinator) writeAll(skip *client, data []byte) int {
	const op = "relay.Coordinator.writeAll"

	c.mu.Lock()
	targets := make([]*client, 0, len(c.clients))
	for cl := range c.clients {
		if cl != skip {
			targets = append(targets, cl)
		}
	}
	c.mu.Unlock()

	written := 0
	for _, cl := range targets {
		if err := c.write(cl, data); err != nil {
			c.log.Warn("relay write failed",
				slog.String("op", op),
				slog.String("remote", cl.remote),
				sl.Err(err),
			)
			continue
		}
		written++
	}
	return written
}

func (c *Coordinator) write(cl *client, data []byte) error {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if err := cl.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}
	if _, err := cl.conn.Write(data); err != nil {
		return err
	}
	return nil
}

func (c *Coordinator) add(cl *client) {
	c.mu.Lock()
	c.clients[cl] = struct{}{}
	n := len(c.clients)
	c.mu.Unlock()
	c.metrics.SetRelayClients(n)
}

func (c *Coordinator) remove(cl *client) {
	c.mu.Lock()
	delete(c.clients, cl)
	n := len(c.clients)
	c.mu.Unlock()
	c.metrics.SetRelayClients(n)
}
