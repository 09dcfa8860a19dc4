package transport

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"lanchat/internal/metrics"
)

const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultWriteTimeout = 30 * time.Second
)

// Config содержит таймауты одной отправки
type Config struct {
	DialTimeout  time.Duration
	WriteTimeout time.Duration
}

// OutboundSend описывает одну попытку доставки
type OutboundSend struct {
	Address string
	Port    int
	Payload string
}

func (o OutboundSend) Target() string {
	return net.JoinHostPort(o.Address, strconv.Itoa(o.Port))
}

// Dialer открывает исходящие соединения. *net.Dialer подходит.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Sender доставляет каждое сообщение через отдельное соединение
type Sender struct {
	cfg     Config
	dialer  Dialer
	log     *slog.Logger
	metrics *metrics.Metrics
	wg      sync.WaitGroup
}
