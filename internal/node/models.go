package node

import (
	"context"
	"errors"

	"lanchat/internal/peers"
	"lanchat/internal/protocol"
)

var (
	// ErrNoRelay is returned by a non-relay node that knows no peer to relay through.
	ErrNoRelay = errors.New("node: no relay known")
	ErrEmpty   = errors.New("node: empty message")
)

const defaultEventBuffer = 256

// Identity задается при старте и больше не меняется
type Identity struct {
	Address string
	Name    string
	// Avatar is attached to every chat message when not empty.
	Avatar []byte
}

type Config struct {
	Identity Identity
	// IsRelay выбирает роль ретранслятора файлов
	IsRelay   bool
	RelayPort int
	// DownloadDir, если задан, получает содержимое принятых файлов
	DownloadDir string
	EventBuffer int
}

// Sender fans a payload out over one-shot connections.
type Sender interface {
	Send(address string, port int, payload string)
	Broadcast(records []peers.Record, local string, payload string) int
}

// RelayLink is the client side connection to the relay.
type RelayLink interface {
	Connect(ctx context.Context, address string, port int) error
	Connected() bool
	// Target returns "host:port" of the connected relay, empty when disconnected.
	Target() string
	Send(payload string) error
}

// RelayBroadcaster is the relay side, used when this node is the relay.
type RelayBroadcaster interface {
	Broadcast(payload string) int
}

type EventKind int

const (
	EventMessage EventKind = iota + 1
	EventFile
	EventPeer
)

func (k EventKind) String() string {
	switch k {
	case EventMessage:
		return "message"
	case EventFile:
		return "file"
	case EventPeer:
		return "peer"
	}
	return "unknown"
}

// Event is what the node surfaces to its consumer.
type Event struct {
	Kind EventKind
	// From адрес отправителя (для файлов через ретранслятор это адрес ретранслятора)
	From     string
	Username string
	Body     string
	Avatar   []byte

	File      *protocol.File
	SavedPath string

	Peer    peers.Record
	Created bool
}
