// Package broadcast announces presence with periodic UDP broadcasts and
// listens for the announcements of other nodes.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"lanchat/internal/discovery"
	"lanchat/internal/metrics"
	"lanchat/internal/protocol"
	"lanchat/internal/util/logger/sl"
)

const Name = "broadcast"

// New создает механизм. Сокет открывается в Listen или Start.
func New(cfg Config, log *slog.Logger, m *metrics.Metrics) *Beacon {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Beacon{
		cfg:     cfg,
		log:     log.With(slog.String("discovery", Name)),
		metrics: m,
	}
}

func (b *Beacon) Name() string {
	return Name
}

func (b *Beacon) SetOnAnnouncement(callback func(a protocol.Announcement)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onAnnouncement = callback
}

// Listen открывает UDP сокет с SO_REUSEADDR и SO_BROADCAST. Повторный вызов
// ничего не делает.
func (b *Beacon) Listen() error {
	const op = "broadcast.Beacon.Listen"

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn != nil {
		return nil
	}

	lc := net.ListenConfig{Control: control}
	pc, err := lc.ListenPacket(context.Background(), "udp4", b.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	b.conn = pc.(*net.UDPConn)
	return nil
}

// Addr returns the bound address, nil before Listen and after Stop.
func (b *Beacon) Addr() net.Addr {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return nil
	}
	return b.conn.LocalAddr()
}

// Start открывает сокет, если нужно, и запускает циклы отправки и приема.
func (b *Beacon) Start(ctx context.Context) error {
	const op = "broadcast.Beacon.Start"
	log := b.log.With(slog.String("op", op))

	if err := b.Listen(); err != nil {
		return err
	}

	target, err := net.ResolveUDPAddr("udp4", b.cfg.Target)
	if err != nil {
		return fmt.Errorf("%s: resolve target: %w", op, err)
	}

	ctx, cancel := context.WithCancel(ctx)

	b.mu.Lock()
	b.cancel = cancel
	conn := b.conn
	b.mu.Unlock()

	b.wg.Add(3)
	go b.announce(ctx, conn, target)
	go b.receive(conn)
	go func() {
		defer b.wg.Done()
		<-ctx.Done()
		_ = conn.Close()
	}()

	log.Info("UDP discovery started",
		slog.String("listen", conn.LocalAddr().String()),
		slog.String("target", target.String()),
		slog.Duration("interval", b.cfg.Interval),
	)
	return nil
}

// Stop закрывает сокет и ждет завершения горутин
func (b *Beacon) Stop() error {
	b.mu.Lock()
	cancel := b.cancel
	conn := b.conn
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	} else if conn != nil {
		// Listen без Start
		_ = conn.Close()
	}
	b.wg.Wait()

	b.mu.Lock()
	if b.conn == conn {
		b.conn = nil
	}
	b.cancel = nil
	b.mu.Unlock()
	return nil
}

// announce отправляет объявление сразу и затем каждые Interval
func (b *Beacon) announce(ctx context.Context, conn *net.UDPConn, target *net.UDPAddr) {
	defer b.wg.Done()

	const op = "broadcast.Beacon.announce"
	log := b.log.With(slog.String("op", op))

	payload, err := protocol.EncodeAnnouncement(protocol.NewOnline(b.cfg.LocalIP, b.cfg.Username))
	if err != nil {
		log.Error("failed to encode announcement", sl.Err(err))
		return
	}

	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := conn.WriteToUDP(payload, target); err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Warn("announcement send failed", sl.Err(err))
		} else {
			b.metrics.RecordAnnouncementSent()
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// receive читает датаграммы до закрытия сокета
func (b *Beacon) receive(conn datagramReader) {
	defer b.wg.Done()

	const op = "broadcast.Beacon.receive"
	log := b.log.With(slog.String("op", op))

	buffer := make([]byte, maxDatagram)
	failures := 0
	for {
		n, remote, err := conn.ReadFromUDP(buffer)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				log.Info("UDP discovery stopped")
				return
			}
			failures++
			if failures == readErrorReport {
				log.Warn("UDP reads keep failing", slog.Int("failures", failures), sl.Err(err))
			} else {
				log.Debug("UDP read failed", sl.Err(err))
			}
			time.Sleep(readErrorBackoff)
			continue
		}
		failures = 0

		a, err := protocol.DecodeAnnouncement(buffer[:n])
		if err != nil {
			b.metrics.RecordAnnouncement(discovery.OutcomeMalformed)
			log.Debug("dropping datagram",
				slog.String("from", remote.String()),
				sl.Err(err),
			)
			continue
		}

		b.mu.Lock()
		callback := b.onAnnouncement
		b.mu.Unlock()

		if callback != nil {
			callback(a)
		}
	}
}
