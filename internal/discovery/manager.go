// Package discovery keeps the peer directory populated from presence
// announcements delivered by one or more mechanisms.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hashicorp/go-multierror"

	"lanchat/internal/metrics"
	"lanchat/internal/peers"
	"lanchat/internal/protocol"
	"lanchat/internal/util/logger/sl"
)

// Manager управляет механизмами обнаружения и обновляет справочник пиров
type Manager struct {
	dir      *peers.Directory
	chatPort int
	log      *slog.Logger
	metrics  *metrics.Metrics

	mechanisms     map[string]Mechanism
	mechanismsLock sync.RWMutex

	handlersLock sync.RWMutex
	handlers     []func(Event)
}

// NewManager создает менеджер. Принятые узлы записываются с портом chatPort.
func NewManager(dir *peers.Directory, chatPort int, log *slog.Logger, m *metrics.Metrics) *Manager {
	return &Manager{
		dir:        dir,
		chatPort:   chatPort,
		log:        log,
		metrics:    m,
		mechanisms: make(map[string]Mechanism),
	}
}

// Register регистрирует механизм обнаружения
func (m *Manager) Register(mechanism Mechanism) {
	const op = "discovery.Manager.Register"
	log := m.log.With(slog.String("op", op))

	name := mechanism.Name()
	mechanism.SetOnAnnouncement(func(a protocol.Announcement) {
		m.handle(name, a)
	})

	m.mechanismsLock.Lock()
	m.mechanisms[name] = mechanism
	m.mechanismsLock.Unlock()

	log.Info("registered discovery mechanism", slog.String("mechanism", name))
}

// OnDiscovered добавляет обработчик событий. Обработчики вызываются из
// горутины механизма и не должны блокироваться.
func (m *Manager) OnDiscovered(fn func(Event)) {
	m.handlersLock.Lock()
	defer m.handlersLock.Unlock()
	m.handlers = append(m.handlers, fn)
}

// Start запускает все зарегистрированные механизмы. Механизм, который не
// удалось запустить, не мешает остальным; ошибки возвращаются вместе.
func (m *Manager) Start(ctx context.Context) error {
	const op = "discovery.Manager.Start"
	log := m.log.With(slog.String("op", op))

	m.mechanismsLock.RLock()
	defer m.mechanismsLock.RUnlock()

	var result *multierror.Error
	for name, mechanism := range m.mechanisms {
		if err := mechanism.Start(ctx); err != nil {
			log.Error("failed to start discovery mechanism",
				slog.String("mechanism", name),
				sl.Err(err),
			)
			result = multierror.Append(result, fmt.Errorf("%s: %w", name, err))
			continue
		}
		log.Info("started discovery mechanism", slog.String("mechanism", name))
	}

	return result.ErrorOrNil()
}

// Stop останавливает все механизмы
func (m *Manager) Stop() {
	const op = "discovery.Manager.Stop"
	log := m.log.With(slog.String("op", op))

	m.mechanismsLock.RLock()
	defer m.mechanismsLock.RUnlock()

	for name, mechanism := range m.mechanisms {
		if err := mechanism.Stop(); err != nil {
			log.Error("error stopping discovery mechanism",
				slog.String("mechanism", name),
				sl.Err(err),
			)
		}
	}
}

// handle применяет правила приема объявления
func (m *Manager) handle(mechanism string, a protocol.Announcement) {
	const op = "discovery.Manager.handle"
	log := m.log.With(
		slog.String("op", op),
		slog.String("mechanism", mechanism),
	)

	if a.Type != protocol.TypeOnline {
		m.metrics.RecordAnnouncement(OutcomeIgnored)
		log.Debug("ignoring announcement", slog.String("type", a.Type))
		return
	}

	// свои объявления отсекаются по адресу
	if a.IP == m.dir.Local() {
		m.metrics.RecordAnnouncement(OutcomeSelf)
		return
	}

	created, err := m.dir.Upsert(a.IP, a.Username, m.chatPort)
	if err != nil {
		m.metrics.RecordAnnouncement(OutcomeInvalid)
		log.Debug("announcement rejected", slog.String("ip", a.IP), sl.Err(err))
		return
	}
	m.metrics.RecordAnnouncement(OutcomeAccepted)
	m.metrics.SetPeersKnown(m.dir.Len())

	if created {
		log.Info("new peer discovered",
			slog.String("ip", a.IP),
			slog.String("username", a.Username),
		)
	} else {
		log.Debug("peer refreshed",
			slog.String("ip", a.IP),
			slog.String("username", a.Username),
		)
	}

	event := Event{
		Peer:      peers.Record{Address: a.IP, Name: a.Username, Port: m.chatPort},
		Created:   created,
		Mechanism: mechanism,
	}

	m.handlersLock.RLock()
	handlers := m.handlers
	m.handlersLock.RUnlock()

	for _, fn := range handlers {
		fn(event)
	}
}
