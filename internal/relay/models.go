package relay

import (
	"errors"
	"net"
	"sync"
	"time"
)

const Name = "relay"

var (
	ErrNotConnected = errors.New("relay: link is not connected")
)

const defaultWriteTimeout = 30 * time.Second

// Handler получает адрес источника и текст без конверта [FILE_FORWARD]:
type Handler func(from string, payload string)

type Config struct {
	Addr           string
	MaxConnections int
	ReadBuffer     int
	WriteTimeout   time.Duration
}

// client is one connection retained by the coordinator. Writes to the same
// connection are serialized.
type client struct {
	conn   net.Conn
	remote string
	mu     sync.Mutex
}
