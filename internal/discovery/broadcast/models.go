package broadcast

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"lanchat/internal/metrics"
	"lanchat/internal/protocol"
)

// DefaultInterval is the delay between two presence announcements.
const DefaultInterval = 5 * time.Second

// maxDatagram bounds a single read from the discovery socket.
const maxDatagram = 64 * 1024

const (
	// readErrorBackoff is the pause after a failed read on a still open socket.
	readErrorBackoff = 100 * time.Millisecond
	// readErrorReport consecutive failures are logged as a warning once.
	readErrorReport = 10
)

type datagramReader interface {
	ReadFromUDP(b []byte) (int, *net.UDPAddr, error)
}

type Config struct {
	// ListenAddr is the local UDP address, e.g. ":12345".
	ListenAddr string
	// Target is where announcements are sent, e.g. "255.255.255.255:12345".
	Target string
	// Interval between announcements. DefaultInterval when zero.
	Interval time.Duration
	// LocalIP and Username fill the announcement body.
	LocalIP  string
	Username string
}

// Beacon реализует обнаружение через широковещательные UDP датаграммы
type Beacon struct {
	cfg     Config
	log     *slog.Logger
	metrics *metrics.Metrics

	mu             sync.Mutex
	conn           *net.UDPConn
	onAnnouncement func(a protocol.Announcement)
	cancel         context.CancelFunc
	wg             sync.WaitGroup
}
