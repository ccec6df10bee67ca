package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/opd-ai/mangeomic/internal/serial"
	"github.com/opd-ai/mangeomic/protocol"
	"github.com/opd-ai/mangeomic/session"
	"github.com/sirupsen/logrus"
)

// Config controls where and how often discovery probes.
type Config struct {
	// ListenAddr is the local address the discovery socket binds.
	ListenAddr string
	// BroadcastAddr is where DISCOVER is sent.
	BroadcastAddr string
	// ReceiveTimeout bounds the wait for a reply after each probe.
	ReceiveTimeout time.Duration
	// Interval is the pause after an attempt that did not pair.
	Interval time.Duration
}

// DefaultConfig binds the well-known discovery port and probes the limited
// broadcast address once a second.
func DefaultConfig() Config {
	port := strconv.Itoa(protocol.DiscoveryPort)
	return Config{
		ListenAddr:     ":" + port,
		BroadcastAddr:  net.JoinHostPort(net.IPv4bcast.String(), port),
		ReceiveTimeout: time.Second,
		Interval:       time.Second,
	}
}

// Service runs the discovery handshake against a session.
type Service struct {
	cfg    Config
	state  *session.State
	runner serial.Runner

	listen func(network, address string) (net.PacketConn, error)
}

// NewService creates a discovery service bound to state.
func NewService(state *session.State, cfg Config) *Service {
	return &Service{
		cfg:    cfg,
		state:  state,
		listen: net.ListenPacket,
	}
}

// Start runs the discovery loop in the background. If a previous loop is
// still draining, the new one starts after it returns.
func (s *Service) Start(ctx context.Context) {
	s.runner.Go(func() error {
		return s.Run(ctx)
	})
}

// Wait blocks until the background loop exits and returns its error.
func (s *Service) Wait() error {
	return s.runner.Wait()
}

// Running reports whether a background loop is active.
func (s *Service) Running() bool {
	return s.runner.Running()
}

// Run executes the discovery loop on the calling goroutine until a peer
// pairs, pairing is switched off, or ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	logger := logrus.WithFields(logrus.Fields{
		"function":   "Service.Run",
		"session_id": s.state.ID(),
		"listen":     s.cfg.ListenAddr,
		"broadcast":  s.cfg.BroadcastAddr,
	})

	target, err := net.ResolveUDPAddr("udp4", s.cfg.BroadcastAddr)
	if err != nil {
		s.state.CancelPairing(fmt.Sprintf("invalid broadcast address %q", s.cfg.BroadcastAddr))
		return fmt.Errorf("resolve broadcast address: %w", err)
	}

	conn, err := s.listen("udp4", s.cfg.ListenAddr)
	if err != nil {
		logger.WithError(err).Error("Failed to bind discovery socket")
		s.state.CancelPairing(fmt.Sprintf("discovery socket unavailable: %v", err))
		return fmt.Errorf("%w: %v", ErrSocketBindFailed, err)
	}
	defer conn.Close()

	logger.Info("Discovery started")

	buffer := make([]byte, 128)
	for {
		if ctx.Err() != nil || !s.state.PairingActive() {
			logger.Info("Discovery cancelled")
			return nil
		}

		s.probe(conn, target)

		peer, err := s.awaitHi(conn, buffer)
		if err != nil {
			logger.WithError(err).Error("Discovery receive failed")
			s.state.CancelPairing(fmt.Sprintf("discovery stopped: %v", err))
			return fmt.Errorf("discovery receive: %w", err)
		}
		if peer != nil {
			if _, err := conn.WriteTo(protocol.OK, peer); err != nil {
				logger.WithError(err).Debug("Failed to send OK")
			}
			ip := protocol.HostOf(peer)
			s.state.CompletePairing(ip)
			logger.WithField("peer", ip).Info("Peer paired")
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.cfg.Interval):
		}
	}
}

// probe broadcasts DISCOVER. Send errors are not fatal; the next iteration
// tries again.
func (s *Service) probe(conn net.PacketConn, target net.Addr) {
	if _, err := conn.WriteTo(protocol.Discover, target); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Service.probe",
			"target":   target.String(),
			"error":    err.Error(),
		}).Debug("Failed to send discovery broadcast")
	}
}

// awaitHi waits up to the receive timeout for one datagram. It returns the
// sender if the datagram was HI, nil on timeout or any other payload, and an
// error only for socket failures.
func (s *Service) awaitHi(conn net.PacketConn, buffer []byte) (net.Addr, error) {
	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReceiveTimeout))

	n, addr, err := conn.ReadFrom(buffer)
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return nil, nil
		}
		return nil, err
	}

	kind := protocol.Classify(buffer[:n])
	if kind != protocol.KindHi {
		logrus.WithFields(logrus.Fields{
			"function": "Service.awaitHi",
			"from":     addr.String(),
			"kind":     kind.String(),
			"size":     n,
		}).Debug("Ignoring non-handshake datagram")
		return nil, nil
	}
	return addr, nil
}
