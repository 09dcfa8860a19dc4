package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"lanchat/internal/peers"
	"lanchat/internal/protocol"
	"lanchat/internal/util/logger/handlers/slogdiscard"
)

type mockMechanism struct {
	mock.Mock
	callback func(a protocol.Announcement)
}

func (m *mockMechanism) Start(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockMechanism) Stop() error {
	args := m.Called()
	return args.Error(0)
}

func (m *mockMechanism) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *mockMechanism) SetOnAnnouncement(callback func(a protocol.Announcement)) {
	m.callback = callback
}

func newTestManager(t *testing.T, name string) (*Manager, *peers.Directory, *mockMechanism) {
	t.Helper()

	dir := peers.NewDirectory("10.0.0.1")
	m := NewManager(dir, protocol.ChatPort, slogdiscard.NewDiscardLogger(), nil)

	mech := &mockMechanism{}
	mech.On("Name").Return(name)
	m.Register(mech)
	require.NotNil(t, mech.callback)

	return m, dir, mech
}

func TestManager_Handle(t *testing.T) {
	tests := []struct {
		name     string
		incoming protocol.Announcement
		wantLen  int
		wantEvt  bool
	}{
		{name: "accepted", incoming: protocol.NewOnline("10.0.0.2", "alice"), wantLen: 1, wantEvt: true},
		{name: "own address", incoming: protocol.NewOnline("10.0.0.1", "me")},
		{name: "wrong type", incoming: protocol.Announcement{IP: "10.0.0.2", Type: "offline", Username: "alice"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, dir, mech := newTestManager(t, "fake")

			var events []Event
			m.OnDiscovered(func(e Event) { events = append(events, e) })

			mech.callback(tt.incoming)

			assert.Equal(t, tt.wantLen, dir.Len())
			if tt.wantEvt {
				require.Len(t, events, 1)
				assert.True(t, events[0].Created)
				assert.Equal(t, "fake", events[0].Mechanism)
				assert.Equal(t, peers.Record{Address: "10.0.0.2", Name: "alice", Port: protocol.ChatPort}, events[0].Peer)
			} else {
				assert.Empty(t, events)
			}
		})
	}
}

func TestManager_RepeatedAnnouncementUpdatesInPlace(t *testing.T) {
	m, dir, mech := newTestManager(t, "fake")

	var created []bool
	m.OnDiscovered(func(e Event) { created = append(created, e.Created) })

	mech.callback(protocol.NewOnline("10.0.0.2", "alice"))
	mech.callback(protocol.NewOnline("10.0.0.2", "alice"))
	mech.callback(protocol.NewOnline("10.0.0.2", "alice2"))

	assert.Equal(t, []bool{true, false, false}, created)
	assert.Equal(t, 1, dir.Len())

	rec, ok := dir.Get("10.0.0.2")
	require.True(t, ok)
	assert.Equal(t, "alice2", rec.Name)
}

func TestManager_StartStop(t *testing.T) {
	m, _, good := newTestManager(t, "good")

	bad := &mockMechanism{}
	bad.On("Name").Return("bad")
	m.Register(bad)

	good.On("Start", mock.Anything).Return(nil)
	bad.On("Start", mock.Anything).Return(errors.New("address in use"))
	good.On("Stop").Return(nil)
	bad.On("Stop").Return(nil)

	err := m.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")

	m.Stop()

	good.AssertCalled(t, "Start", mock.Anything)
	good.AssertCalled(t, "Stop")
	bad.AssertCalled(t, "Stop")
}
