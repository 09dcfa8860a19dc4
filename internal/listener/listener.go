// Package listener runs a TCP accept loop with a bound on concurrent
// connections. Each accepted connection is passed to a handler goroutine.
package listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"lanchat/internal/util/logger/sl"
)

const (
	DefaultMaxConnections = 100 // Максимальное число одновременных соединений
	acceptDeadline        = 1 * time.Second
)

// Handler обрабатывает соединение. Соединение закрывается после возврата
// и при отмене контекста.
type Handler func(ctx context.Context, conn net.Conn)

type Config struct {
	Addr           string
	MaxConnections int
}

type Server struct {
	name    string
	cfg     Config
	handler Handler
	log     *slog.Logger

	mu sync.Mutex
	ln *net.TCPListener
}

func New(name string, cfg Config, handler Handler, log *slog.Logger) *Server {
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = DefaultMaxConnections
	}
	return &Server{
		name:    name,
		cfg:     cfg,
		handler: handler,
		log:     log.With(slog.String("listener", name)),
	}
}

// Listen привязывает сокет. Ошибка привязки возвращается вызывающему,
// который решает, отключать ли роль.
func (s *Server) Listen() error {
	const op = "listener.Server.Listen"

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ln != nil {
		return nil
	}

	tcpAddr, err := net.ResolveTCPAddr("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("%s: resolve %s: %w", op, s.cfg.Addr, err)
	}

	ln, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return fmt.Errorf("%s: listen %s: %w", op, s.cfg.Addr, err)
	}

	s.ln = ln
	return nil
}

// Addr returns the bound address, nil before Listen and after Serve returns.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve принимает соединения до отмены ctx и ждет завершения обработчиков.
func (s *Server) Serve(ctx context.Context) error {
	const op = "listener.Server.Serve"
	log := s.log.With(slog.String("op", op))

	if err := s.Listen(); err != nil {
		return err
	}

	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	defer s.release(ln)

	log.Info("service started", slog.String("addr", ln.Addr().String()))

	var wg sync.WaitGroup
	connLimiter := make(chan struct{}, s.cfg.MaxConnections)

	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down listener")
			wg.Wait()
			return nil
		default:
		}

		if err := ln.SetDeadline(time.Now().Add(acceptDeadline)); err != nil {
			log.Warn("failed to set deadline", sl.Err(err))
		}

		conn, err := ln.Accept()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue // продолжаем слушать, если это ошибка таймаута
			}
			if errors.Is(err, net.ErrClosed) {
				wg.Wait()
				return nil
			}
			log.Warn("error accepting connection", sl.Err(err))
			continue
		}

		select {
		case connLimiter <- struct{}{}:
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() { <-connLimiter }()
				s.handle(ctx, conn)
			}()
		default:
			log.Warn("too many connections, rejecting new connection",
				slog.String("remote", conn.RemoteAddr().String()),
			)
			conn.Close()
		}
	}
}

// release закрывает сокет и сбрасывает его, чтобы следующий Listen
// привязал новый.
func (s *Server) release(ln *net.TCPListener) {
	s.mu.Lock()
	if s.ln == ln {
		s.ln = nil
	}
	s.mu.Unlock()
	_ = ln.Close()
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	const op = "listener.Server.handle"
	log := s.log.With(
		slog.String("op", op),
		slog.String("remote", conn.RemoteAddr().String()),
	)

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer func() {
		stop()
		conn.Close()
		log.Debug("connection closed")
	}()

	log.Debug("new connection established")
	s.handler(ctx, conn)
}

// RemoteHost returns the host part of the peer address of conn.
func RemoteHost(conn net.Conn) string {
	addr := conn.RemoteAddr().String()
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
