package mangeomic

import (
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/opd-ai/mangeomic/discovery"
	"github.com/opd-ai/mangeomic/protocol"
	"github.com/opd-ai/mangeomic/relay"
	"github.com/opd-ai/mangeomic/session"
	"github.com/opd-ai/mangeomic/sink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// phone simulates the mobile peer: it answers discovery and plays back
// whatever the test asks it to send on the streaming socket.
type phone struct {
	discovery net.PacketConn
	stream    net.PacketConn

	mu      sync.Mutex
	desktop net.Addr
	byes    int
}

func newPhone(t *testing.T) *phone {
	t.Helper()
	d, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	s, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() {
		d.Close()
		s.Close()
	})

	p := &phone{discovery: d, stream: s}
	go p.answerDiscovery()
	go p.readStream()
	return p
}

func (p *phone) answerDiscovery() {
	buf := make([]byte, 128)
	for {
		n, addr, err := p.discovery.ReadFrom(buf)
		if err != nil {
			return
		}
		if protocol.Classify(buf[:n]) == protocol.KindDiscover {
			_, _ = p.discovery.WriteTo(protocol.Hi, addr)
		}
	}
}

func (p *phone) readStream() {
	buf := make([]byte, 128)
	for {
		n, addr, err := p.stream.ReadFrom(buf)
		if err != nil {
			return
		}
		p.mu.Lock()
		switch protocol.Classify(buf[:n]) {
		case protocol.KindKeepAlive:
			p.desktop = addr
		case protocol.KindBye:
			p.byes++
		}
		p.mu.Unlock()
	}
}

func (p *phone) desktopAddr() net.Addr {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.desktop
}

func (p *phone) byeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.byes
}

type recordingProvider struct {
	ready   bool
	ensured int
}

func (r *recordingProvider) EnsureReady() bool {
	r.ensured++
	return r.ready
}

func (r *recordingProvider) IsReady() bool { return r.ready }

func testOptions(p *phone) Options {
	return Options{
		Discovery: discovery.Config{
			ListenAddr:     "127.0.0.1:0",
			BroadcastAddr:  p.discovery.LocalAddr().String(),
			ReceiveTimeout: 200 * time.Millisecond,
			Interval:       50 * time.Millisecond,
		},
		Relay: relay.Config{
			ListenAddr:        "127.0.0.1:0",
			PeerPort:          p.stream.LocalAddr().(*net.UDPAddr).Port,
			KeepAliveInterval: 30 * time.Millisecond,
			ReceiveTimeout:    20 * time.Millisecond,
			HeartbeatTimeout:  2 * time.Second,
		},
	}
}

func TestDesktopFullSession(t *testing.T) {
	p := newPhone(t)
	opts := testOptions(p)
	provider := &recordingProvider{ready: true}
	opts.Provider = provider

	desktop := New(opts)
	desktop.Start(context.Background())
	defer desktop.Close()

	assert.Equal(t, 1, provider.ensured)
	assert.True(t, desktop.SinkReady())

	require.Eventually(t, func() bool {
		return desktop.Snapshot().Paired
	}, 2*time.Second, 10*time.Millisecond)

	snap := desktop.Snapshot()
	assert.Equal(t, "127.0.0.1", snap.PhoneIP)
	assert.Equal(t, session.StatusConnected, snap.Status())
	assert.ErrorIs(t, desktop.TogglePairing(), ErrAlreadyPaired)

	require.NoError(t, desktop.ToggleStreaming())
	require.Eventually(t, func() bool {
		return p.desktopAddr() != nil
	}, 2*time.Second, 5*time.Millisecond)

	to := p.desktopAddr()
	for i := 0; i < 3; i++ {
		_, err := p.stream.WriteTo([]byte{byte(i), 0x7f}, to)
		require.NoError(t, err)
		_, err = p.stream.WriteTo(protocol.Heartbeat, to)
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool {
		return desktop.Snapshot().PacketCount == 3
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, session.StatusStreaming, desktop.Snapshot().Status())

	desktop.Disconnect()
	require.Eventually(t, func() bool { return p.byeCount() == 1 }, time.Second, 5*time.Millisecond)

	snap = desktop.Snapshot()
	assert.False(t, snap.Paired)
	assert.False(t, snap.Streaming)
	assert.False(t, snap.PairingActive)
	assert.Equal(t, session.StatusIdle, snap.Status())
	assert.NoError(t, desktop.Close())
}

func TestDesktopStreamingRequiresPairing(t *testing.T) {
	desktop := New(DefaultOptions())
	assert.ErrorIs(t, desktop.ToggleStreaming(), ErrNotPaired)
	assert.False(t, desktop.Snapshot().Streaming)
}

func TestDesktopPairingToggle(t *testing.T) {
	p := newPhone(t)
	opts := testOptions(p)
	// Point discovery somewhere nobody answers.
	silent, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer silent.Close()
	opts.Discovery.BroadcastAddr = silent.LocalAddr().String()

	desktop := New(opts)
	desktop.Start(context.Background())

	require.NoError(t, desktop.TogglePairing())
	assert.False(t, desktop.Snapshot().PairingActive)
	require.NoError(t, desktop.TogglePairing())
	assert.True(t, desktop.Snapshot().PairingActive)
	require.NoError(t, desktop.TogglePairing())

	assert.NoError(t, desktop.Close())
	assert.False(t, desktop.Snapshot().Paired)
}

func TestDesktopReportsUnavailableSink(t *testing.T) {
	opts := DefaultOptions()
	opts.Provider = &recordingProvider{ready: false}
	opts.Discovery.ListenAddr = "127.0.0.1:0"
	opts.Discovery.BroadcastAddr = "127.0.0.1:9"

	desktop := New(opts)
	desktop.Start(context.Background())
	_ = desktop.TogglePairing()
	defer desktop.Close()

	assert.False(t, desktop.SinkReady())
	found := false
	for _, line := range desktop.Snapshot().Logs {
		if strings.Contains(line, "virtual microphone unavailable") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestDesktopDisconnectWithoutPeer(t *testing.T) {
	desktop := New(Options{Opener: sink.Null{}})
	assert.NotPanics(t, desktop.Disconnect)
	assert.False(t, desktop.Snapshot().PairingActive)
}
