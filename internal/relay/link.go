package relay

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"lanchat/internal/protocol"
	"lanchat/internal/transport"
	"lanchat/internal/util/logger/sl"
)

type LinkConfig struct {
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	ReadBuffer   int
}

// Link держит одно соединение с предполагаемым ретранслятором: через него
// приходят пересланные файлы и уходят собственные.
type Link struct {
	cfg    LinkConfig
	onFile Handler
	log    *slog.Logger

	mu     sync.Mutex
	conn   net.Conn
	target string
	wg     sync.WaitGroup
}

func NewLink(cfg LinkConfig, onFile Handler, log *slog.Logger) *Link {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = transport.DefaultDialTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.ReadBuffer <= 0 {
		cfg.ReadBuffer = transport.DefaultReadBuffer
	}
	return &Link{
		cfg:    cfg,
		onFile: onFile,
		log:    log.With(slog.String("component", "relay_link")),
	}
}

// Connect подключается к address:port. Если связь с этой целью уже есть,
// ничего не делает; связь с другой целью закрывается.
func (l *Link) Connect(ctx context.Context, address string, port int) error {
	const op = "relay.Link.Connect"
	log := l.log.With(slog.String("op", op))

	target := net.JoinHostPort(address, strconv.Itoa(port))

	l.mu.Lock()
	if l.conn != nil && l.target == target {
		l.mu.Unlock()
		return nil
	}
	old := l.conn
	l.conn = nil
	l.target = ""
	l.mu.Unlock()

	if old != nil {
		old.Close()
	}

	dialer := net.Dialer{Timeout: l.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", target)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	l.mu.Lock()
	if l.conn != nil {
		// параллельный Connect успел раньше
		l.mu.Unlock()
		conn.Close()
		return nil
	}
	l.conn = conn
	l.target = target
	l.mu.Unlock()

	log.Info("relay link established", slog.String("target", target))

	l.wg.Add(1)
	go l.read(conn, address)
	return nil
}

// Send пишет payload в связь. Без соединения возвращает ErrNotConnected.
func (l *Link) Send(payload string) error {
	const op = "relay.Link.Send"

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn == nil {
		return ErrNotConnected
	}
	if err := l.conn.SetWriteDeadline(time.Now().Add(l.cfg.WriteTimeout)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, err := l.conn.Write([]byte(payload)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (l *Link) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn != nil
}

// Target returns "host:port" of the current relay, empty when disconnected.
func (l *Link) Target() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.target
}

// Close рвет связь и ждет завершения чтения
func (l *Link) Close() error {
	l.mu.Lock()
	conn := l.conn
	l.conn = nil
	l.target = ""
	l.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}
	l.wg.Wait()
	return err
}

func (l *Link) read(conn net.Conn, relayHost string) {
	defer l.wg.Done()

	const op = "relay.Link.read"
	log := l.log.With(slog.String("op", op), slog.String("relay", relayHost))

	err := transport.ReadChunks(conn, l.cfg.ReadBuffer, func(chunk []byte) {
		text := string(chunk)
		inner, err := protocol.UnwrapForward(text)
		if err != nil {
			log.Debug("ignoring non-forward chunk from relay", slog.Int("bytes", len(chunk)))
			return
		}
		if l.onFile != nil {
			l.onFile(relayHost, inner)
		}
	})
	if err != nil {
		log.Debug("relay link read ended", sl.Err(err))
	}

	l.mu.Lock()
	if l.conn == conn {
		l.conn = nil
		l.target = ""
	}
	l.mu.Unlock()
	conn.Close()

	log.Info("relay link closed")
}
