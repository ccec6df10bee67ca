package relay

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/opd-ai/mangeomic/protocol"
	"github.com/opd-ai/mangeomic/sink"
	"github.com/stretchr/testify/require"
)

// captureSink records writes so tests can check forwarding.
type captureSink struct {
	mu         sync.Mutex
	writes     [][]byte
	terminated int
	failWrites bool
}

func (c *captureSink) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWrites {
		return 0, errors.New("device busy")
	}
	c.writes = append(c.writes, append([]byte(nil), p...))
	return len(p), nil
}

func (c *captureSink) Terminate() error {
	c.mu.Lock()
	c.terminated++
	c.mu.Unlock()
	return nil
}

func (c *captureSink) snapshot() ([][]byte, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.writes...), c.terminated
}

func openerFor(s *captureSink) sink.Opener {
	return sink.OpenerFunc(func() (sink.PlaybackSink, error) { return s, nil })
}

// fakePhone is the peer end of the streaming link.
type fakePhone struct {
	conn net.PacketConn

	mu         sync.Mutex
	keepAlives []time.Time
	byes       int
	desktop    net.Addr
}

func newFakePhone(t *testing.T) *fakePhone {
	t.Helper()
	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	p := &fakePhone{conn: conn}
	go p.listen()
	return p
}

func (p *fakePhone) port() int {
	return p.conn.LocalAddr().(*net.UDPAddr).Port
}

func (p *fakePhone) listen() {
	buf := make([]byte, 256)
	for {
		n, addr, err := p.conn.ReadFrom(buf)
		if err != nil {
			return
		}
		p.mu.Lock()
		switch protocol.Classify(buf[:n]) {
		case protocol.KindKeepAlive:
			p.keepAlives = append(p.keepAlives, time.Now())
			p.desktop = addr
		case protocol.KindBye:
			p.byes++
		}
		p.mu.Unlock()
	}
}

func (p *fakePhone) stats() ([]time.Time, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]time.Time(nil), p.keepAlives...), p.byes
}

func (p *fakePhone) send(t *testing.T, to net.Addr, payload []byte) {
	t.Helper()
	_, err := p.conn.WriteTo(payload, to)
	require.NoError(t, err)
}

func testConfig(phone *fakePhone) Config {
	return Config{
		ListenAddr:        "127.0.0.1:0",
		PeerPort:          phone.port(),
		KeepAliveInterval: 50 * time.Millisecond,
		ReceiveTimeout:    20 * time.Millisecond,
		HeartbeatTimeout:  2 * time.Second,
		BufferSize:        MaxDatagramSize,
	}
}
