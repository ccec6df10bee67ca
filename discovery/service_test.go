package discovery

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/opd-ai/mangeomic/protocol"
	"github.com/opd-ai/mangeomic/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePhone listens where the desktop broadcasts and records what it hears.
type fakePhone struct {
	conn net.PacketConn

	mu        sync.Mutex
	discovers []time.Time
	oks       int
}

func newFakePhone(t *testing.T) *fakePhone {
	t.Helper()
	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &fakePhone{conn: conn}
}

// serve answers every DISCOVER with reply until ctx is done.
func (p *fakePhone) serve(ctx context.Context, reply []byte) {
	buf := make([]byte, 128)
	for ctx.Err() == nil {
		_ = p.conn.SetReadDeadline(time.Now().Add(20 * time.Millisecond))
		n, addr, err := p.conn.ReadFrom(buf)
		if err != nil {
			continue
		}
		switch protocol.Classify(buf[:n]) {
		case protocol.KindDiscover:
			p.mu.Lock()
			p.discovers = append(p.discovers, time.Now())
			p.mu.Unlock()
			if reply != nil {
				_, _ = p.conn.WriteTo(reply, addr)
			}
		case protocol.KindOK:
			p.mu.Lock()
			p.oks++
			p.mu.Unlock()
		}
	}
}

func (p *fakePhone) counts() (discovers []time.Time, oks int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]time.Time(nil), p.discovers...), p.oks
}

func testConfig(phone *fakePhone) Config {
	return Config{
		ListenAddr:     "127.0.0.1:0",
		BroadcastAddr:  phone.conn.LocalAddr().String(),
		ReceiveTimeout: 50 * time.Millisecond,
		Interval:       100 * time.Millisecond,
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, ":50004", cfg.ListenAddr)
	assert.Equal(t, "255.255.255.255:50004", cfg.BroadcastAddr)
	assert.Equal(t, time.Second, cfg.ReceiveTimeout)
	assert.Equal(t, time.Second, cfg.Interval)
}

func TestHandshakePairsWithFirstResponder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	phone := newFakePhone(t)
	go phone.serve(ctx, protocol.Hi)

	state := session.NewState()
	cfg := testConfig(phone)
	cfg.ReceiveTimeout = time.Second
	svc := NewService(state, cfg)
	svc.Start(ctx)
	require.NoError(t, svc.Wait())

	snap := state.Snapshot()
	assert.True(t, snap.Paired)
	assert.False(t, snap.PairingActive)
	assert.Equal(t, "127.0.0.1", snap.PhoneIP)
	assert.Contains(t, snap.Logs[len(snap.Logs)-1], "paired with 127.0.0.1")

	// No further probes once paired.
	time.Sleep(300 * time.Millisecond)
	discovers, oks := phone.counts()
	assert.Len(t, discovers, 1)
	assert.Equal(t, 1, oks)
	assert.False(t, svc.Running())
}

func TestNonMatchingRepliesAreIgnored(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	phone := newFakePhone(t)
	go phone.serve(ctx, []byte("MANGEO_HELLO"))

	state := session.NewState()
	svc := NewService(state, testConfig(phone))
	svc.Start(ctx)

	require.Eventually(t, func() bool {
		discovers, _ := phone.counts()
		return len(discovers) >= 4
	}, 2*time.Second, 10*time.Millisecond)

	_, _ = state.TogglePairing()
	require.NoError(t, svc.Wait())

	discovers, oks := phone.counts()
	assert.Zero(t, oks)
	assert.False(t, state.Paired())
	for i := 1; i < len(discovers); i++ {
		assert.GreaterOrEqual(t, discovers[i].Sub(discovers[i-1]), 80*time.Millisecond)
	}
}

func TestCancellationStopsLoopWithoutPairing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	phone := newFakePhone(t)
	go phone.serve(ctx, nil)

	state := session.NewState()
	svc := NewService(state, testConfig(phone))
	svc.Start(ctx)

	require.Eventually(t, func() bool {
		discovers, _ := phone.counts()
		return len(discovers) >= 1
	}, time.Second, 10*time.Millisecond)

	active, err := state.TogglePairing()
	require.NoError(t, err)
	require.False(t, active)

	done := make(chan error, 1)
	go func() { done <- svc.Wait() }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("discovery loop did not stop after pairing was switched off")
	}

	snap := state.Snapshot()
	assert.False(t, snap.Paired)
	assert.Empty(t, snap.PhoneIP)
}

func TestContextCancellationStopsLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	phone := newFakePhone(t)
	go phone.serve(ctx, nil)

	state := session.NewState()
	svc := NewService(state, testConfig(phone))
	svc.Start(ctx)
	time.Sleep(60 * time.Millisecond)
	cancel()

	assert.NoError(t, svc.Wait())
	assert.False(t, state.Paired())
}

func TestBindFailureIsFatal(t *testing.T) {
	busy, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	state := session.NewState()
	svc := NewService(state, Config{
		ListenAddr:     busy.LocalAddr().String(),
		BroadcastAddr:  "127.0.0.1:9",
		ReceiveTimeout: 50 * time.Millisecond,
		Interval:       50 * time.Millisecond,
	})

	err = svc.Run(context.Background())
	assert.ErrorIs(t, err, ErrSocketBindFailed)

	snap := state.Snapshot()
	assert.False(t, snap.PairingActive)
	assert.False(t, snap.Paired)
	assert.Contains(t, snap.Logs[len(snap.Logs)-1], "discovery socket unavailable")
}

func TestInvalidBroadcastAddress(t *testing.T) {
	state := session.NewState()
	svc := NewService(state, Config{ListenAddr: "127.0.0.1:0", BroadcastAddr: "not an address"})

	assert.Error(t, svc.Run(context.Background()))
	assert.False(t, state.PairingActive())
}

func TestRestartWaitsForPreviousLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	phone := newFakePhone(t)
	go phone.serve(ctx, nil)

	state := session.NewState()
	cfg := testConfig(phone)
	port := freeUDPPort(t)
	cfg.ListenAddr = port

	svc := NewService(state, cfg)
	svc.Start(ctx)
	time.Sleep(30 * time.Millisecond)

	// Off and on again before the first loop notices.
	_, _ = state.TogglePairing()
	_, _ = state.TogglePairing()
	svc.Start(ctx)

	time.Sleep(300 * time.Millisecond)
	assert.True(t, state.PairingActive(), "second loop must not fail to bind the port held by the first")

	_, _ = state.TogglePairing()
	assert.NoError(t, svc.Wait())
}

func freeUDPPort(t *testing.T) string {
	t.Helper()
	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	addr := conn.LocalAddr().String()
	require.NoError(t, conn.Close())
	return addr
}
