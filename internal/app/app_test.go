package app

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lanchat/internal/config"
	"lanchat/internal/node"
	"lanchat/internal/util/logger/handlers/slogdiscard"
)

const (
	hostA = "127.0.0.2"
	hostB = "127.0.0.3"
)

// sharedPort возвращает порт, свободный на обоих адресах
func sharedPort(t *testing.T, network string) int {
	t.Helper()

	for i := 0; i < 20; i++ {
		port, ok := tryPort(network, hostA, 0)
		if !ok {
			t.Skipf("cannot bind %s on %s", network, hostA)
		}
		if _, ok := tryPort(network, hostB, port); ok {
			return port
		}
	}
	t.Skipf("no %s port free on both %s and %s", network, hostA, hostB)
	return 0
}

func tryPort(network, host string, port int) (int, bool) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	switch network {
	case "udp":
		conn, err := net.ListenPacket("udp4", addr)
		if err != nil {
			return 0, false
		}
		defer conn.Close()
		return conn.LocalAddr().(*net.UDPAddr).Port, true
	default:
		ln, err := net.Listen("tcp4", addr)
		if err != nil {
			return 0, false
		}
		defer ln.Close()
		return ln.Addr().(*net.TCPAddr).Port, true
	}
}

func addrsFor(self, other string, discoveryPort, chatPort, relayPort int) Addrs {
	hp := func(host string, port int) string {
		return net.JoinHostPort(host, strconv.Itoa(port))
	}
	return Addrs{
		LocalIP:         self,
		DiscoveryListen: hp(self, discoveryPort),
		DiscoveryTarget: hp(other, discoveryPort),
		ChatListen:      hp(self, chatPort),
		RelayListen:     hp(self, relayPort),
		ChatPort:        chatPort,
		RelayPort:       relayPort,
	}
}

func testConfig(name string, relay bool) *config.Config {
	return &config.Config{
		Env:       config.EnvLocal,
		Name:      name,
		Relay:     relay,
		Discovery: config.Discovery{Interval: 100 * time.Millisecond},
		Transport: config.Transport{DialTimeout: time.Second, WriteTimeout: time.Second},
	}
}

func waitEvent(t *testing.T, events <-chan node.Event, kind node.EventKind) node.Event {
	t.Helper()

	timeout := time.After(5 * time.Second)
	for {
		select {
		case e := <-events:
			if e.Kind == kind {
				return e
			}
		case <-timeout:
			t.Fatalf("no %s event", kind)
			return node.Event{}
		}
	}
}

func TestTwoInstances_DiscoverChatAndRelayFile(t *testing.T) {
	discoveryPort := sharedPort(t, "udp")
	chatPort := sharedPort(t, "tcp")
	relayPort := sharedPort(t, "tcp")
	for relayPort == chatPort {
		relayPort = sharedPort(t, "tcp")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := slogdiscard.NewDiscardLogger()

	cfgA := testConfig("alice", true)
	cfgA.Storage.DownloadDir = t.TempDir()
	cfgA.Storage.HistoryPath = filepath.Join(t.TempDir(), "history.db")
	a, err := NewWithAddrs(ctx, cfgA, addrsFor(hostA, hostB, discoveryPort, chatPort, relayPort), log)
	require.NoError(t, err)

	b, err := NewWithAddrs(ctx, testConfig("bob", false), addrsFor(hostB, hostA, discoveryPort, chatPort, relayPort), log)
	require.NoError(t, err)

	require.NoError(t, a.Start(ctx))
	defer a.Stop()
	require.NoError(t, b.Start(ctx))
	defer b.Stop()

	peerOfA := waitEvent(t, a.Node().Events(), node.EventPeer)
	assert.Equal(t, hostB, peerOfA.Peer.Address)
	assert.Equal(t, "bob", peerOfA.Peer.Name)
	assert.Equal(t, chatPort, peerOfA.Peer.Port)

	peerOfB := waitEvent(t, b.Node().Events(), node.EventPeer)
	assert.Equal(t, hostA, peerOfB.Peer.Address)
	assert.Equal(t, "alice", peerOfB.Peer.Name)

	// ни один узел не видит себя
	assert.Equal(t, 1, a.Peers().Len())
	assert.Equal(t, 1, b.Peers().Len())

	sent, err := b.Node().SendChat("hello alice")
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	msg := waitEvent(t, a.Node().Events(), node.EventMessage)
	assert.Equal(t, "bob", msg.Username)
	assert.Equal(t, "hello alice", msg.Body)

	_, err = a.Node().SendChat("hi bob")
	require.NoError(t, err)

	reply := waitEvent(t, b.Node().Events(), node.EventMessage)
	assert.Equal(t, "alice", reply.Username)
	assert.Equal(t, "hi bob", reply.Body)

	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("file body"), 0o600))
	require.NoError(t, b.Node().SendFilePath(path))

	file := waitEvent(t, a.Node().Events(), node.EventFile)
	assert.Equal(t, "bob", file.Username)
	require.NotNil(t, file.File)
	assert.Equal(t, "notes.txt", file.File.FullName())

	saved, err := os.ReadFile(file.SavedPath)
	require.NoError(t, err)
	assert.Equal(t, "file body", string(saved))

	count, err := a.History().Count()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, count, 3)
}

func TestStart_BusyChatPortKeepsOtherRoles(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := NewWithAddrs(ctx, testConfig("alice", true), Addrs{
		LocalIP:         "127.0.0.1",
		DiscoveryListen: "127.0.0.1:0",
		DiscoveryTarget: "127.0.0.1:9",
		ChatListen:      ln.Addr().String(),
		RelayListen:     "127.0.0.1:0",
		ChatPort:        ln.Addr().(*net.TCPAddr).Port,
		RelayPort:       0,
	}, slogdiscard.NewDiscardLogger())
	require.NoError(t, err)

	err = a.Start(ctx)
	require.Error(t, err)

	assert.NotNil(t, a.coordinator.Addr(), "relay role must still run")
	a.Stop()
}

func TestNew_MissingAvatarIsNotFatal(t *testing.T) {
	cfg := testConfig("alice", false)
	cfg.Avatar = filepath.Join(t.TempDir(), "missing.png")

	a, err := NewWithAddrs(context.Background(), cfg, DefaultAddrs(), slogdiscard.NewDiscardLogger())
	require.NoError(t, err)
	assert.Empty(t, a.Node().Identity().Avatar)
	assert.Equal(t, "alice", a.Node().Identity().Name)
}

func TestDefaultAddrs(t *testing.T) {
	addrs := DefaultAddrs()

	assert.NotEmpty(t, addrs.LocalIP)
	assert.Equal(t, ":12345", addrs.DiscoveryListen)
	assert.Equal(t, "255.255.255.255:12345", addrs.DiscoveryTarget)
	assert.Equal(t, ":12346", addrs.ChatListen)
	assert.Equal(t, ":12347", addrs.RelayListen)
	assert.Equal(t, 12346, addrs.ChatPort)
	assert.Equal(t, 12347, addrs.RelayPort)
}
