// Package inbox accepts chat connections and surfaces every read chunk as
// one inbound payload, unmodified.
package inbox

import (
	"context"
	"log/slog"
	"net"

	"lanchat/internal/listener"
	"lanchat/internal/metrics"
	"lanchat/internal/transport"
	"lanchat/internal/util/logger/sl"
)

const Name = "chat"

// Handler получает адрес отправителя и текст одного прочитанного фрагмента
type Handler func(remote string, payload string)

type Config struct {
	Addr           string
	MaxConnections int
	// ReadBuffer bounds one read. Larger payloads arrive split.
	ReadBuffer int
}

type Inbox struct {
	srv        *listener.Server
	handler    Handler
	readBuffer int
	log        *slog.Logger
	metrics    *metrics.Metrics
}

func New(cfg Config, handler Handler, log *slog.Logger, m *metrics.Metrics) *Inbox {
	if cfg.ReadBuffer <= 0 {
		cfg.ReadBuffer = transport.DefaultReadBuffer
	}

	in := &Inbox{
		handler:    handler,
		readBuffer: cfg.ReadBuffer,
		log:        log.With(slog.String("component", "inbox")),
		metrics:    m,
	}
	in.srv = listener.New(Name, listener.Config{
		Addr:           cfg.Addr,
		MaxConnections: cfg.MaxConnections,
	}, in.handleConn, log)

	return in
}

func (in *Inbox) Listen() error {
	return in.srv.Listen()
}

func (in *Inbox) Addr() net.Addr {
	return in.srv.Addr()
}

// Serve блокируется до отмены ctx
func (in *Inbox) Serve(ctx context.Context) error {
	return in.srv.Serve(ctx)
}

func (in *Inbox) handleConn(_ context.Context, conn net.Conn) {
	const op = "inbox.handleConn"
	remote := listener.RemoteHost(conn)

	err := transport.ReadChunks(conn, in.readBuffer, func(chunk []byte) {
		in.metrics.RecordChunk(Name, len(chunk))
		in.handler(remote, string(chunk))
	})
	if err != nil {
		in.log.Debug("connection read ended",
			slog.String("op", op),
			slog.String("remote", remote),
			sl.Err(err),
		)
	}
}
