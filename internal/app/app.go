// Package app wires every lanchat role into one process.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"lanchat/internal/config"
	"lanchat/internal/discovery"
	"lanchat/internal/discovery/broadcast"
	"lanchat/internal/discovery/mdns"
	"lanchat/internal/history"
	"lanchat/internal/inbox"
	"lanchat/internal/localaddr"
	"lanchat/internal/metrics"
	"lanchat/internal/node"
	"lanchat/internal/peers"
	"lanchat/internal/protocol"
	"lanchat/internal/relay"
	"lanchat/internal/transport"
	"lanchat/internal/util/logger/sl"
	"lanchat/internal/watcher"
)

const shutdownTimeout = 5 * time.Second

// Addrs are the local bindings. Production uses DefaultAddrs; tests bind
// other loopback addresses and ports.
type Addrs struct {
	LocalIP         string
	DiscoveryListen string
	DiscoveryTarget string
	ChatListen      string
	RelayListen     string
	// ChatPort and RelayPort are the ports dialed on other peers.
	ChatPort  int
	RelayPort int
}

// DefaultAddrs resolves the local address and uses the well-known ports.
func DefaultAddrs() Addrs {
	return Addrs{
		LocalIP:         localaddr.Resolve(),
		DiscoveryListen: ":" + strconv.Itoa(protocol.DiscoveryPort),
		DiscoveryTarget: net.JoinHostPort(protocol.BroadcastAddress, strconv.Itoa(protocol.DiscoveryPort)),
		ChatListen:      ":" + strconv.Itoa(protocol.ChatPort),
		RelayListen:     ":" + strconv.Itoa(protocol.RelayPort),
		ChatPort:        protocol.ChatPort,
		RelayPort:       protocol.RelayPort,
	}
}

type App struct {
	cfg   *config.Config
	addrs Addrs
	log   *slog.Logger

	metrics     *metrics.Metrics
	dir         *peers.Directory
	sender      *transport.Sender
	node        *node.Node
	inbox       *inbox.Inbox
	coordinator *relay.Coordinator
	link        *relay.Link
	discovery   *discovery.Manager
	history     *history.Store
	outbox      *watcher.OutboxWatcher
	metricsSrv  *metrics.Server

	cancel     context.CancelFunc
	cancelNode context.CancelFunc
	wg         sync.WaitGroup
}

func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	return NewWithAddrs(ctx, cfg, DefaultAddrs(), log)
}

// NewWithAddrs собирает компоненты, но ничего не привязывает: сокеты
// открываются в Start.
func NewWithAddrs(ctx context.Context, cfg *config.Config, addrs Addrs, log *slog.Logger) (*App, error) {
	const op = "app.New"

	a := &App{
		cfg:     cfg,
		addrs:   addrs,
		log:     log,
		metrics: metrics.New(),
		dir:     peers.NewDirectory(addrs.LocalIP),
	}

	a.sender = transport.NewSender(transport.Config{
		DialTimeout:  cfg.Transport.DialTimeout,
		WriteTimeout: cfg.Transport.WriteTimeout,
	}, log, a.metrics)

	identity := node.Identity{Address: addrs.LocalIP, Name: cfg.Name}
	if cfg.Avatar != "" {
		avatar, err := os.ReadFile(cfg.Avatar)
		if err != nil {
			log.Warn("avatar not loaded, sending without it",
				slog.String("op", op),
				slog.String("path", cfg.Avatar),
				sl.Err(err),
			)
		} else {
			identity.Avatar = avatar
		}
	}

	// контекст узла отменяется в Stop
	nodeCtx, cancelNode := context.WithCancel(ctx)
	a.cancelNode = cancelNode

	a.node = node.New(nodeCtx, node.Config{
		Identity:    identity,
		IsRelay:     cfg.Relay,
		RelayPort:   addrs.RelayPort,
		DownloadDir: cfg.Storage.DownloadDir,
	}, a.dir, a.sender, log)

	if cfg.Storage.HistoryPath != "" {
		store, err := history.Open(history.Config{Path: cfg.Storage.HistoryPath})
		if err != nil {
			cancelNode()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		a.history = store
		a.node.SetHistory(store)
	}

	a.inbox = inbox.New(inbox.Config{
		Addr:           addrs.ChatListen,
		MaxConnections: cfg.Inbox.MaxConnections,
		ReadBuffer:     cfg.Inbox.ReadBuffer,
	}, a.node.HandleMessage, log, a.metrics)

	if cfg.Relay {
		a.coordinator = relay.NewCoordinator(relay.Config{
			Addr:           addrs.RelayListen,
			MaxConnections: cfg.Inbox.MaxConnections,
			ReadBuffer:     cfg.Inbox.ReadBuffer,
			WriteTimeout:   cfg.Transport.WriteTimeout,
		}, a.node.HandleFile, a.node.HandleMessage, log, a.metrics)
		a.node.SetCoordinator(a.coordinator)
	} else {
		a.link = relay.NewLink(relay.LinkConfig{
			DialTimeout:  cfg.Transport.DialTimeout,
			WriteTimeout: cfg.Transport.WriteTimeout,
			ReadBuffer:   cfg.Inbox.ReadBuffer,
		}, a.node.HandleFile, log)
		a.node.SetRelayLink(a.link)
	}

	a.discovery = discovery.NewManager(a.dir, addrs.ChatPort, log, a.metrics)
	a.discovery.Register(broadcast.New(broadcast.Config{
		ListenAddr: addrs.DiscoveryListen,
		Target:     addrs.DiscoveryTarget,
		Interval:   cfg.Discovery.Interval,
		LocalIP:    addrs.LocalIP,
		Username:   cfg.Name,
	}, log, a.metrics))
	if cfg.Discovery.MDNS {
		a.discovery.Register(mdns.New(mdns.Config{
			LocalIP:  addrs.LocalIP,
			Username: cfg.Name,
			Port:     addrs.ChatPort,
		}, log))
	}
	a.discovery.OnDiscovered(func(e discovery.Event) {
		a.node.HandlePeer(e.Peer, e.Created)
	})

	if cfg.Metrics.Address != "" {
		a.metricsSrv = metrics.NewServer(cfg.Metrics.Address, a.metrics)
	}

	return a, nil
}

func (a *App) Node() *node.Node {
	return a.node
}

func (a *App) Peers() *peers.Directory {
	return a.dir
}

func (a *App) History() *history.Store {
	return a.history
}

// Start запускает все роли. Роль, которую не удалось запустить (например,
// порт занят), отключается, остальные продолжают работать; ошибки
// возвращаются вместе.
func (a *App) Start(ctx context.Context) error {
	const op = "app.Start"
	log := a.log.With(slog.String("op", op))

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	var result *multierror.Error

	if err := a.inbox.Listen(); err != nil {
		log.Error("chat inbox disabled", sl.Err(err))
		result = multierror.Append(result, err)
	} else {
		a.serve(ctx, inbox.Name, a.inbox.Serve)
	}

	if a.coordinator != nil {
		if err := a.coordinator.Listen(); err != nil {
			log.Error("file relay disabled", sl.Err(err))
			result = multierror.Append(result, err)
		} else {
			a.serve(ctx, relay.Name, a.coordinator.Serve)
		}
	}

	if err := a.discovery.Start(ctx); err != nil {
		result = multierror.Append(result, err)
	}

	if a.cfg.Outbox.Path != "" {
		if err := a.startOutbox(ctx); err != nil {
			log.Error("outbox watcher disabled", sl.Err(err))
			result = multierror.Append(result, err)
		}
	}

	if a.metricsSrv != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := a.metricsSrv.Start(); err != nil {
				log.Error("metrics server stopped", sl.Err(err))
			}
		}()
	}

	log.Info("lanchat started",
		slog.String("name", a.cfg.Name),
		slog.String("address", a.addrs.LocalIP),
		slog.Bool("relay", a.cfg.Relay),
	)
	return result.ErrorOrNil()
}

func (a *App) serve(ctx context.Context, name string, fn func(context.Context) error) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := fn(ctx); err != nil {
			a.log.Error("listener stopped", slog.String("listener", name), sl.Err(err))
		}
	}()
}

func (a *App) startOutbox(ctx context.Context) error {
	w, err := watcher.New(a.node, watcher.Config{
		DebounceDuration: a.cfg.Outbox.Debounce,
		Logger:           a.log,
	})
	if err != nil {
		return err
	}
	if err := w.Watch(a.cfg.Outbox.Path); err != nil {
		_ = w.Close()
		return err
	}
	a.outbox = w

	// ошибки уже залогированы наблюдателем, здесь только вычитываем буфер
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.Errors():
			}
		}
	}()
	return nil
}

// Stop останавливает роли и ждет завершения всех горутин. Отправки в полете
// завершаются по собственному таймауту.
func (a *App) Stop() {
	const op = "app.Stop"
	log := a.log.With(slog.String("op", op))

	if a.cancel != nil {
		a.cancel()
	}
	a.cancelNode()

	if a.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.metricsSrv.Shutdown(ctx); err != nil {
			log.Warn("metrics server shutdown", sl.Err(err))
		}
		cancel()
	}

	a.discovery.Stop()

	if a.outbox != nil {
		if err := a.outbox.Close(); err != nil {
			log.Warn("outbox watcher close", sl.Err(err))
		}
	}

	a.wg.Wait()

	if a.link != nil {
		_ = a.link.Close()
	}
	a.sender.Wait()

	if a.history != nil {
		if err := a.history.Close(); err != nil {
			log.Warn("history close", sl.Err(err))
		}
	}

	log.Info("lanchat stopped")
}
