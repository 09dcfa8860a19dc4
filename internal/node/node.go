// Package node is the consuming layer of the chat: it builds outbound
// payloads from the local identity and turns inbound text into events.
package node

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"lanchat/internal/history"
	"lanchat/internal/peers"
	"lanchat/internal/protocol"
	"lanchat/internal/util/logger/sl"
)

type Node struct {
	ctx    context.Context
	cfg    Config
	dir    *peers.Directory
	sender Sender
	log    *slog.Logger
	events chan Event

	mu          sync.RWMutex
	link        RelayLink
	coordinator RelayBroadcaster
	history     history.Recorder

	linking atomic.Bool
}

// New создает узел. ctx ограничивает время жизни фоновых операций узла.
func New(ctx context.Context, cfg Config, dir *peers.Directory, sender Sender, log *slog.Logger) *Node {
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = defaultEventBuffer
	}
	return &Node{
		ctx:    ctx,
		cfg:    cfg,
		dir:    dir,
		sender: sender,
		log:    log.With(slog.String("component", "node")),
		events: make(chan Event, cfg.EventBuffer),
	}
}

func (n *Node) SetRelayLink(l RelayLink) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.link = l
}

func (n *Node) SetCoordinator(c RelayBroadcaster) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.coordinator = c
}

func (n *Node) SetHistory(h history.Recorder) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.history = h
}

func (n *Node) Identity() Identity {
	return n.cfg.Identity
}

func (n *Node) IsRelay() bool {
	return n.cfg.IsRelay
}

func (n *Node) Peers() []peers.Record {
	return n.dir.Snapshot()
}

// Events returns the stream of inbound messages, files and peers.
func (n *Node) Events() <-chan Event {
	return n.events
}

// SendChat рассылает сообщение всем известным узлам и возвращает число
// запущенных отправок.
func (n *Node) SendChat(body string) (int, error) {
	const op = "node.SendChat"
	log := n.log.With(slog.String("op", op))

	if strings.TrimSpace(body) == "" {
		return 0, ErrEmpty
	}

	id := n.cfg.Identity
	payload := protocol.FormatChatWithAvatar(id.Name, body, id.Avatar)
	started := n.sender.Broadcast(n.dir.Snapshot(), id.Address, payload)

	log.Debug("chat broadcast", slog.Int("recipients", started))

	n.record(&history.Entry{
		Direction: history.Outbound,
		Kind:      history.KindChat,
		Username:  id.Name,
		Body:      body,
	})
	return started, nil
}

// SendFile отправляет файл через ретранслятор. Ретранслятор рассылает файл
// своим клиентам сам. Остальные узлы пишут в связь, если она ведет к первому
// узлу справочника, иначе делают одноразовую отправку этому узлу.
func (n *Node) SendFile(f protocol.File) error {
	const op = "node.SendFile"
	log := n.log.With(slog.String("op", op), slog.String("file", f.FullName()))

	wrapped := protocol.WrapForward(protocol.FormatChat(n.cfg.Identity.Name, protocol.EncodeFile(f)))

	n.mu.RLock()
	link, coordinator := n.link, n.coordinator
	n.mu.RUnlock()

	switch {
	case n.cfg.IsRelay && coordinator != nil:
		written := coordinator.Broadcast(wrapped)
		log.Info("file sent to relay clients", slog.Int("clients", written))

	case link != nil && n.linkedToFirst(link) && link.Send(wrapped) == nil:
		log.Info("file sent over relay link")

	default:
		relay, ok := n.dir.First()
		if !ok {
			return fmt.Errorf("%s: %w", op, ErrNoRelay)
		}
		n.sender.Send(relay.Address, n.cfg.RelayPort, wrapped)
		log.Info("file sent to relay", slog.String("relay", relay.Address))
	}

	n.record(&history.Entry{
		Direction: history.Outbound,
		Kind:      history.KindFile,
		Username:  n.cfg.Identity.Name,
		FileName:  f.FullName(),
		FileSize:  f.Size,
	})
	return nil
}

// SendFilePath reads a file from disk and sends it.
func (n *Node) SendFilePath(path string) error {
	const op = "node.SendFilePath"

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return n.SendFile(protocol.NewFile(path, content))
}

// HandleMessage обрабатывает фрагмент, полученный на порту чата
func (n *Node) HandleMessage(from, payload string) {
	const op = "node.HandleMessage"
	log := n.log.With(slog.String("op", op), slog.String("from", from))

	msg, err := protocol.ParseChat(payload)
	if err != nil {
		log.Warn("discarding malformed message", sl.Err(err))
		return
	}

	if protocol.IsFilePayload(msg.Body) {
		n.deliverFile(from, msg)
		return
	}

	n.record(&history.Entry{
		Direction: history.Inbound,
		Kind:      history.KindChat,
		Peer:      from,
		Username:  msg.Username,
		Body:      msg.Body,
	})
	n.emit(Event{
		Kind:     EventMessage,
		From:     from,
		Username: msg.Username,
		Body:     msg.Body,
		Avatar:   msg.Avatar,
	})
}

// HandleFile обрабатывает полезную нагрузку без конверта [FILE_FORWARD]:
func (n *Node) HandleFile(from, payload string) {
	const op = "node.HandleFile"
	log := n.log.With(slog.String("op", op), slog.String("from", from))

	msg, err := protocol.ParseChat(payload)
	if err != nil {
		log.Warn("discarding malformed file message", sl.Err(err))
		return
	}
	n.deliverFile(from, msg)
}

func (n *Node) deliverFile(from string, msg protocol.ChatMessage) {
	const op = "node.deliverFile"
	log := n.log.With(slog.String("op", op), slog.String("from", from))

	f, err := protocol.ParseFile(msg.Body)
	if err != nil {
		log.Warn("discarding malformed file", sl.Err(err))
		return
	}

	var saved string
	if n.cfg.DownloadDir != "" {
		saved, err = n.save(f)
		if err != nil {
			log.Warn("discarding file", slog.String("file", f.FullName()), sl.Err(err))
			return
		}
	}

	log.Info("file received",
		slog.String("username", msg.Username),
		slog.String("file", f.FullName()),
		slog.Int64("size", f.Size),
	)

	n.record(&history.Entry{
		Direction: history.Inbound,
		Kind:      history.KindFile,
		Peer:      from,
		Username:  msg.Username,
		FileName:  f.FullName(),
		FileSize:  f.Size,
	})
	n.emit(Event{
		Kind:      EventFile,
		From:      from,
		Username:  msg.Username,
		File:      &f,
		SavedPath: saved,
	})
}

// HandlePeer reacts to a discovery event: the consumer is told about the
// peer and a non-relay node (re)connects to the assumed relay.
func (n *Node) HandlePeer(rec peers.Record, created bool) {
	if !n.cfg.IsRelay {
		n.ensureRelayLink()
	}
	if created {
		n.emit(Event{Kind: EventPeer, Peer: rec, Created: created})
	}
}

// ensureRelayLink держит связь с текущим первым узлом справочника. Если
// первым стал другой узел, связь переподключается к нему.
func (n *Node) ensureRelayLink() {
	n.mu.RLock()
	link := n.link
	n.mu.RUnlock()

	if link == nil || n.linkedToFirst(link) {
		return
	}
	if !n.linking.CompareAndSwap(false, true) {
		return
	}

	relay, ok := n.dir.First()
	if !ok {
		n.linking.Store(false)
		return
	}

	go func() {
		defer n.linking.Store(false)

		const op = "node.ensureRelayLink"
		if err := link.Connect(n.ctx, relay.Address, n.cfg.RelayPort); err != nil {
			n.log.Debug("relay link not established",
				slog.String("op", op),
				slog.String("relay", relay.Address),
				sl.Err(err),
			)
		}
	}()
}

// linkedToFirst reports whether link is connected to the relay port of the
// first directory entry.
func (n *Node) linkedToFirst(link RelayLink) bool {
	relay, ok := n.dir.First()
	if !ok || !link.Connected() {
		return false
	}
	return link.Target() == n.relayTarget(relay)
}

func (n *Node) relayTarget(rec peers.Record) string {
	return net.JoinHostPort(rec.Address, strconv.Itoa(n.cfg.RelayPort))
}

// save пишет файл в DownloadDir, не перезаписывая существующие
func (n *Node) save(f protocol.File) (string, error) {
	content, err := f.Content()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(n.cfg.DownloadDir, 0o755); err != nil {
		return "", err
	}

	name := filepath.Base(f.FullName())
	if name == "." || name == string(filepath.Separator) || name == "" {
		name = "file"
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	for i := 0; ; i++ {
		candidate := name
		if i > 0 {
			candidate = stem + " (" + strconv.Itoa(i) + ")" + ext
		}
		path := filepath.Join(n.cfg.DownloadDir, candidate)

		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if os.IsExist(err) {
			continue
		}
		if err != nil {
			return "", err
		}
		if _, err := file.Write(content); err != nil {
			file.Close()
			return "", err
		}
		return path, file.Close()
	}
}

func (n *Node) record(e *history.Entry) {
	n.mu.RLock()
	h := n.history
	n.mu.RUnlock()

	if h == nil {
		return
	}
	if err := h.Append(e); err != nil {
		n.log.Warn("failed to record history", slog.String("op", "node.record"), sl.Err(err))
	}
}

func (n *Node) emit(e Event) {
	select {
	case n.events <- e:
	case <-n.ctx.Done():
	}
}
