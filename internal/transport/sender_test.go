package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"lanchat/internal/peers"
	"lanchat/internal/util/logger/handlers/slogdiscard"
)

type mockConn struct {
	net.Conn
	writeBuf bytes.Buffer
	writeErr error
	closed   bool
}

func (m *mockConn) Write(b []byte) (int, error) {
	if m.writeErr != nil {
		return 0, m.writeErr
	}
	return m.writeBuf.Write(b)
}

func (m *mockConn) Close() error {
	m.closed = true
	return nil
}

func (m *mockConn) SetWriteDeadline(time.Time) error {
	return nil
}

type mockDialer struct {
	mock.Mock
}

func (d *mockDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	args := d.Called(network, address)
	conn, _ := args.Get(0).(net.Conn)
	return conn, args.Error(1)
}

func newTestSender() *Sender {
	return NewSender(Config{DialTimeout: time.Second, WriteTimeout: time.Second}, slogdiscard.NewDiscardLogger(), nil)
}

// listen возвращает адрес и канал с полным содержимым каждого соединения
func listen(t *testing.T) (*net.TCPAddr, <-chan string) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	out := make(chan string, 16)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			data, _ := io.ReadAll(conn)
			conn.Close()
			out <- string(data)
		}
	}()

	return ln.Addr().(*net.TCPAddr), out
}

func TestDeliver_WritesWholePayloadAndCloses(t *testing.T) {
	addr, received := listen(t)
	s := newTestSender()

	payload := "[alice]: " + strings.Repeat("x", 200_000)
	err := s.Deliver(context.Background(), OutboundSend{Address: "127.0.0.1", Port: addr.Port, Payload: payload})
	require.NoError(t, err)

	select {
	case got := <-received:
		assert.Equal(t, payload, got)
	case <-time.After(2 * time.Second):
		t.Fatal("payload not received")
	}
}

func TestDeliver_DeadAddress(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	s := newTestSender()
	err = s.Deliver(context.Background(), OutboundSend{Address: "127.0.0.1", Port: port, Payload: "[a]: hi"})
	assert.Error(t, err)
}

func TestSend_DeadAddressLeavesDirectoryUntouched(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	dir := peers.NewDirectory("10.0.0.1")
	_, err = dir.Upsert("127.0.0.1", "ghost", port)
	require.NoError(t, err)
	before := dir.Snapshot()

	s := newTestSender()
	assert.NotPanics(t, func() {
		s.Broadcast(dir.Snapshot(), dir.Local(), "[alice]: anyone?")
		s.Wait()
	})

	assert.Equal(t, before, dir.Snapshot())
}

func TestBroadcast_SkipsLocalAddress(t *testing.T) {
	d := &mockDialer{}
	conn := &mockConn{}
	d.On("DialContext", "tcp", "10.0.0.2:12346").Return(conn, nil).Once()

	s := newTestSender().WithDialer(d)
	started := s.Broadcast([]peers.Record{
		{Address: "10.0.0.1", Name: "me", Port: 12346},
		{Address: "10.0.0.2", Name: "bob", Port: 12346},
	}, "10.0.0.1", "[alice]: hi")
	s.Wait()

	assert.Equal(t, 1, started)
	d.AssertExpectations(t)
	assert.Equal(t, "[alice]: hi", conn.writeBuf.String())
	assert.True(t, conn.closed)
}

func TestDeliver_WriteErrorClosesConnection(t *testing.T) {
	d := &mockDialer{}
	conn := &mockConn{writeErr: errors.New("broken pipe")}
	d.On("DialContext", "tcp", "10.0.0.2:12346").Return(conn, nil)

	s := newTestSender().WithDialer(d)
	err := s.Deliver(context.Background(), OutboundSend{Address: "10.0.0.2", Port: 12346, Payload: "x"})

	require.Error(t, err)
	assert.True(t, conn.closed)
}

func TestOutboundSend_Target(t *testing.T) {
	assert.Equal(t, "10.0.0.2:12346", OutboundSend{Address: "10.0.0.2", Port: 12346}.Target())
}
