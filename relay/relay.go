package relay

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/opd-ai/mangeomic/internal/serial"
	"github.com/opd-ai/mangeomic/protocol"
	"github.com/opd-ai/mangeomic/session"
	"github.com/opd-ai/mangeomic/sink"
	"github.com/sirupsen/logrus"
)

// Session log messages for the two link-loss paths.
const (
	LogPeerDisconnected  = "peer disconnected"
	LogCommunicationLost = "communication lost: no packets received"
)

// MaxDatagramSize is the largest UDP payload over IPv4.
const MaxDatagramSize = 65507

// Config controls the streaming socket and liveness cadence.
type Config struct {
	// ListenAddr is the local address the streaming socket binds.
	ListenAddr string
	// PeerPort is the phone's streaming port.
	PeerPort int
	// KeepAliveInterval is the KEEP_ALIVE send cadence.
	KeepAliveInterval time.Duration
	// ReceiveTimeout bounds each receive; it is also the cancellation latency.
	ReceiveTimeout time.Duration
	// HeartbeatTimeout is how long the link may stay silent.
	HeartbeatTimeout time.Duration
	// BufferSize is the largest datagram accepted.
	BufferSize int
}

// DefaultConfig uses the well-known streaming port on both ends.
func DefaultConfig() Config {
	return Config{
		ListenAddr:        ":" + strconv.Itoa(protocol.StreamPort),
		PeerPort:          protocol.StreamPort,
		KeepAliveInterval: 500 * time.Millisecond,
		ReceiveTimeout:    100 * time.Millisecond,
		HeartbeatTimeout:  5 * time.Second,
		BufferSize:        MaxDatagramSize,
	}
}

// Relay runs the streaming loop for a paired session.
type Relay struct {
	cfg    Config
	state  *session.State
	opener sink.Opener
	clock  session.TimeProvider
	runner serial.Runner

	listen func(network, address string) (net.PacketConn, error)

	mu        sync.Mutex
	localAddr net.Addr
}

// New creates a relay for state that plays audio into sinks from opener.
func New(state *session.State, opener sink.Opener, cfg Config) *Relay {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	return &Relay{
		cfg:    cfg,
		state:  state,
		opener: opener,
		clock:  state.Clock(),
		listen: net.ListenPacket,
	}
}

// Start runs the relay loop in the background, after any previous loop has
// returned.
func (r *Relay) Start(ctx context.Context) {
	r.runner.Go(func() error {
		return r.Run(ctx)
	})
}

// Wait blocks until the background loop exits and returns its error.
func (r *Relay) Wait() error {
	return r.runner.Wait()
}

// Running reports whether a background loop is active.
func (r *Relay) Running() bool {
	return r.runner.Running()
}

// LocalAddr returns the bound streaming socket address, or nil when no loop
// holds the socket.
func (r *Relay) LocalAddr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.localAddr
}

func (r *Relay) setLocalAddr(addr net.Addr) {
	r.mu.Lock()
	r.localAddr = addr
	r.mu.Unlock()
}

// Run executes the streaming loop on the calling goroutine.
func (r *Relay) Run(ctx context.Context) error {
	if !r.state.Streaming() {
		return nil
	}
	ip, ok := r.state.PhoneIP()
	if !ok {
		r.state.StopStreaming("streaming needs a paired phone")
		return ErrNotPaired
	}

	logger := logrus.WithFields(logrus.Fields{
		"function":   "Relay.Run",
		"session_id": r.state.ID(),
		"peer":       ip,
	})

	peer, err := net.ResolveUDPAddr("udp", protocol.StreamAddr(ip, r.cfg.PeerPort))
	if err != nil {
		r.state.StopStreaming(fmt.Sprintf("invalid peer address %s", ip))
		return fmt.Errorf("resolve peer: %w", err)
	}

	conn, err := r.listen("udp", r.cfg.ListenAddr)
	if err != nil {
		logger.WithError(err).Error("Failed to bind stream socket")
		r.state.StopStreaming(fmt.Sprintf("stream socket unavailable: %v", err))
		return fmt.Errorf("%w: %v", ErrSocketBindFailed, err)
	}
	defer conn.Close()

	playback, err := r.opener.Open()
	if err != nil {
		logger.WithError(err).Error("Failed to open playback sink")
		r.state.StopStreaming(fmt.Sprintf("playback unavailable: %v", err))
		return fmt.Errorf("%w: %v", ErrSinkUnavailable, err)
	}
	defer terminate(playback)

	r.setLocalAddr(conn.LocalAddr())
	defer r.setLocalAddr(nil)

	st := newStream(r.state, playback, r.cfg, r.clock.Now())
	logger.WithField("local", conn.LocalAddr().String()).Info("Relay started")

	buffer := make([]byte, r.cfg.BufferSize)
	for {
		if ctx.Err() != nil || !r.state.Streaming() {
			logger.Info("Relay stopped")
			return nil
		}

		if st.keepAliveDue(r.clock.Now()) {
			if _, err := conn.WriteTo(protocol.KeepAlive, peer); err != nil {
				logger.WithError(err).Debug("Failed to send keep-alive")
			}
		}

		_ = conn.SetReadDeadline(time.Now().Add(r.cfg.ReceiveTimeout))
		n, _, err := conn.ReadFrom(buffer)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				if st.expired(r.clock.Now()) {
					logger.Warn("Heartbeat timeout")
					return nil
				}
				continue
			}
			logger.WithError(err).Error("Stream receive failed")
			r.state.StopStreaming(fmt.Sprintf("stream stopped: %v", err))
			return fmt.Errorf("stream receive: %w", err)
		}

		if done := st.handle(buffer[:n], r.clock.Now()); done {
			logger.Info("Peer said goodbye")
			return nil
		}
	}
}

func terminate(playback sink.PlaybackSink) {
	if err := playback.Terminate(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "terminate",
			"error":    err.Error(),
		}).Warn("Failed to terminate playback sink")
	}
}
