package inbox

import (
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lanchat/internal/transport"
	"lanchat/internal/util/logger/handlers/slogdiscard"
)

type collector struct {
	mu       sync.Mutex
	payloads []string
	remotes  []string
}

func (c *collector) handle(remote, payload string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remotes = append(c.remotes, remote)
	c.payloads = append(c.payloads, payload)
}

func (c *collector) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.payloads...)
}

func startInbox(t *testing.T, readBuffer int) (*Inbox, *collector) {
	t.Helper()

	c := &collector{}
	in := New(Config{Addr: "127.0.0.1:0", ReadBuffer: readBuffer}, c.handle, slogdiscard.NewDiscardLogger(), nil)
	require.NoError(t, in.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = in.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return in, c
}

func send(t *testing.T, in *Inbox, payload string) {
	t.Helper()

	port := in.Addr().(*net.TCPAddr).Port
	s := transport.NewSender(transport.Config{}, slogdiscard.NewDiscardLogger(), nil)
	require.NoError(t, s.Deliver(context.Background(), transport.OutboundSend{
		Address: "127.0.0.1",
		Port:    port,
		Payload: payload,
	}))
}

func TestInbox_DeliversPayloadUnmodified(t *testing.T) {
	in, c := startInbox(t, 0)

	payload := "[alice]: привет |AVATAR:QUJD"
	send(t, in, payload)

	require.Eventually(t, func() bool { return len(c.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{payload}, c.snapshot())

	c.mu.Lock()
	assert.Equal(t, "127.0.0.1", c.remotes[0])
	c.mu.Unlock()
}

func TestInbox_OneMessagePerConnection(t *testing.T) {
	in, c := startInbox(t, 0)

	send(t, in, "[alice]: one")
	send(t, in, "[bob]: two")

	require.Eventually(t, func() bool { return len(c.snapshot()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.ElementsMatch(t, []string{"[alice]: one", "[bob]: two"}, c.snapshot())
}

// Полезная нагрузка больше одного чтения приходит несколькими фрагментами.
// Склейки нет, это ограничение протокола.
func TestInbox_LargePayloadIsSplitIntoChunks(t *testing.T) {
	const readBuffer = 1024
	in, c := startInbox(t, readBuffer)

	payload := "[alice]: " + strings.Repeat("z", 10*readBuffer)
	send(t, in, payload)

	require.Eventually(t, func() bool {
		return len(strings.Join(c.snapshot(), "")) == len(payload)
	}, 2*time.Second, 10*time.Millisecond)

	chunks := c.snapshot()
	assert.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), readBuffer)
	}
	assert.Equal(t, payload, strings.Join(chunks, ""))
}
