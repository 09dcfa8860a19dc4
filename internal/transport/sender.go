// Package transport delivers payloads over one-shot TCP connections: dial,
// a single write, half-close, close. Nothing is acknowledged or retried.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"lanchat/internal/metrics"
	"lanchat/internal/peers"
	"lanchat/internal/util/logger/sl"
)

func NewSender(cfg Config, log *slog.Logger, m *metrics.Metrics) *Sender {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	return &Sender{
		cfg:     cfg,
		dialer:  &net.Dialer{Timeout: cfg.DialTimeout},
		log:     log,
		metrics: m,
	}
}

// WithDialer заменяет способ установки соединения
func (s *Sender) WithDialer(d Dialer) *Sender {
	s.dialer = d
	return s
}

// Send запускает доставку в отдельной горутине. Ошибки только логируются,
// полезная нагрузка при этом теряется.
func (s *Sender) Send(address string, port int, payload string) {
	s.SendTo(OutboundSend{Address: address, Port: port, Payload: payload})
}

func (s *Sender) SendTo(out OutboundSend) {
	const op = "transport.Sender.SendTo"

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		// отправка не зависит от контекста вызывающего
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.DialTimeout+s.cfg.WriteTimeout)
		defer cancel()

		if err := s.Deliver(ctx, out); err != nil {
			s.log.Warn("send failed",
				slog.String("op", op),
				slog.String("target", out.Target()),
				sl.Err(err),
			)
		}
	}()
}

// Broadcast отправляет payload каждому узлу из снимка, кроме local.
// Возвращает число запущенных отправок.
func (s *Sender) Broadcast(records []peers.Record, local string, payload string) int {
	started := 0
	for _, rec := range records {
		if rec.Address == local {
			continue
		}
		s.Send(rec.Address, rec.Port, payload)
		started++
	}
	return started
}

// Deliver синхронно выполняет одну отправку
func (s *Sender) Deliver(ctx context.Context, out OutboundSend) (err error) {
	const op = "transport.Sender.Deliver"

	start := time.Now()
	defer func() {
		s.metrics.RecordSend(err, len(out.Payload), time.Since(start))
	}()

	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.DialTimeout)
	defer cancel()

	conn, err := s.dialer.DialContext(dialCtx, "tcp", out.Target())
	if err != nil {
		return fmt.Errorf("%s: dial: %w", op, err)
	}
	defer conn.Close()

	if err := conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
		return fmt.Errorf("%s: set deadline: %w", op, err)
	}

	if _, err := conn.Write([]byte(out.Payload)); err != nil {
		return fmt.Errorf("%s: write: %w", op, err)
	}

	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		if err := cw.CloseWrite(); err != nil {
			return fmt.Errorf("%s: close write: %w", op, err)
		}
	}

	s.log.Debug("payload sent",
		slog.String("op", op),
		slog.String("target", out.Target()),
		slog.Int("bytes", len(out.Payload)),
	)
	return nil
}

// Wait ждет завершения всех запущенных отправок
func (s *Sender) Wait() {
	s.wg.Wait()
}
