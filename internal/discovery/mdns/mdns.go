// Package mdns advertises and browses the lanchat service over multicast DNS.
// Browse results are turned into ordinary presence announcements.
package mdns

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/grandcat/zeroconf"

	"lanchat/internal/protocol"
)

const (
	Name        = "mdns"
	ServiceType = "_lanchat._tcp"
	Domain      = "local."

	txtIP       = "ip="
	txtUsername = "username="
)

type Config struct {
	LocalIP  string
	Username string
	// Port is advertised in the SRV record, normally the chat port.
	Port int
}

// Mechanism реализует обнаружение через mDNS (zeroconf)
type Mechanism struct {
	cfg Config
	log *slog.Logger

	mu             sync.Mutex
	server         *zeroconf.Server
	onAnnouncement func(a protocol.Announcement)
	cancel         context.CancelFunc
	wg             sync.WaitGroup
}

func New(cfg Config, log *slog.Logger) *Mechanism {
	return &Mechanism{
		cfg: cfg,
		log: log.With(slog.String("discovery", Name)),
	}
}

func (m *Mechanism) Name() string {
	return Name
}

func (m *Mechanism) SetOnAnnouncement(callback func(a protocol.Announcement)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onAnnouncement = callback
}

// Start регистрирует сервис и запускает просмотр сети
func (m *Mechanism) Start(ctx context.Context) error {
	const op = "mdns.Mechanism.Start"
	log := m.log.With(slog.String("op", op))

	server, err := zeroconf.Register(
		instanceName(m.cfg.Username, m.cfg.LocalIP),
		ServiceType,
		Domain,
		m.cfg.Port,
		[]string{txtIP + m.cfg.LocalIP, txtUsername + m.cfg.Username},
		nil,
	)
	if err != nil {
		return fmt.Errorf("%s: register: %w", op, err)
	}

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		server.Shutdown()
		return fmt.Errorf("%s: resolver: %w", op, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	entries := make(chan *zeroconf.ServiceEntry)

	if err := resolver.Browse(ctx, ServiceType, Domain, entries); err != nil {
		cancel()
		server.Shutdown()
		return fmt.Errorf("%s: browse: %w", op, err)
	}

	m.mu.Lock()
	m.server = server
	m.cancel = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go m.consume(ctx, entries)

	log.Info("mDNS discovery started", slog.String("service", ServiceType))
	return nil
}

func (m *Mechanism) Stop() error {
	m.mu.Lock()
	cancel := m.cancel
	server := m.server
	m.cancel = nil
	m.server = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if server != nil {
		server.Shutdown()
	}
	m.wg.Wait()
	return nil
}

func (m *Mechanism) consume(ctx context.Context, entries <-chan *zeroconf.ServiceEntry) {
	defer m.wg.Done()

	const op = "mdns.Mechanism.consume"
	log := m.log.With(slog.String("op", op))

	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-entries:
			if !ok {
				return
			}

			a, ok := ToAnnouncement(entry)
			if !ok {
				log.Debug("skipping service entry", slog.String("instance", entry.Instance))
				continue
			}

			m.mu.Lock()
			callback := m.onAnnouncement
			m.mu.Unlock()

			if callback != nil {
				callback(a)
			}
		}
	}
}

// ToAnnouncement converts a browse result. The TXT ip wins over the
// resolved A record; an entry without any IPv4 address is rejected.
func ToAnnouncement(entry *zeroconf.ServiceEntry) (protocol.Announcement, bool) {
	if entry == nil {
		return protocol.Announcement{}, false
	}

	var ip, username string
	for _, txt := range entry.Text {
		switch {
		case strings.HasPrefix(txt, txtIP):
			ip = strings.TrimPrefix(txt, txtIP)
		case strings.HasPrefix(txt, txtUsername):
			username = strings.TrimPrefix(txt, txtUsername)
		}
	}

	if ip == "" && len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0].String()
	}
	if ip == "" {
		return protocol.Announcement{}, false
	}
	if username == "" {
		username = entry.Instance
	}

	return protocol.NewOnline(ip, username), true
}

func instanceName(username, ip string) string {
	return fmt.Sprintf("%s@%s", username, ip)
}
