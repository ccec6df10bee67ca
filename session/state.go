package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// State is the shared session record. One State is created at process start
// and passed by pointer to every loop that reads or mutates it. All access is
// serialized by a single mutex that is never held across socket calls.
//
// Invariants maintained by the mutators:
//   - streaming implies paired
//   - the phone endpoint is set only while paired
//   - log and latency histories never exceed HistoryCapacity
type State struct {
	mu sync.Mutex

	id            string
	pairingActive bool
	paired        bool
	streaming     bool
	phoneIP       string
	lastLatency   float64
	hasLatency    bool
	lastHeartbeat time.Time
	packetCount   uint64

	logs    *ring[string]
	latency *ring[float64]

	timeProvider TimeProvider
}

// Option configures a State at construction.
type Option func(*State)

// WithTimeProvider injects the clock used for log timestamps and heartbeat
// bookkeeping.
func WithTimeProvider(tp TimeProvider) Option {
	return func(s *State) {
		s.timeProvider = tp
	}
}

// NewState creates the session record with pairing active, a zero-filled
// latency history and a single "system ready" log entry.
func NewState(opts ...Option) *State {
	s := &State{
		id:            uuid.NewString(),
		pairingActive: true,
		logs:          newRing[string](HistoryCapacity),
		latency:       newRing[float64](HistoryCapacity),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.timeProvider = getTimeProvider(s.timeProvider)
	s.lastHeartbeat = s.timeProvider.Now()

	for i := 0; i < HistoryCapacity; i++ {
		s.pushLatencyLocked(0)
	}
	s.appendLogLocked("system ready")

	logrus.WithFields(logrus.Fields{
		"function":   "NewState",
		"session_id": s.id,
	}).Debug("Session state created")

	return s
}

// ID returns the random identifier attached to this session's log entries.
func (s *State) ID() string {
	return s.id
}

// Clock returns the time provider the state was built with.
func (s *State) Clock() TimeProvider {
	return s.timeProvider
}

// PairingActive reports whether discovery should keep running.
func (s *State) PairingActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pairingActive
}

// Paired reports whether a peer is bound to the session.
func (s *State) Paired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paired
}

// Streaming reports whether the relay should keep running.
func (s *State) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

// PhoneIP returns the paired peer's address.
func (s *State) PhoneIP() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phoneIP, s.phoneIP != ""
}

// TogglePairing flips pairing_active and returns the new value. It fails
// while a peer is paired, since discovery has nothing to do then.
func (s *State) TogglePairing() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paired {
		return s.pairingActive, ErrAlreadyPaired
	}
	s.pairingActive = !s.pairingActive
	if s.pairingActive {
		s.appendLogLocked("searching for phone")
	} else {
		s.appendLogLocked("search stopped")
	}
	return s.pairingActive, nil
}

// ToggleStreaming flips streaming and returns the new value. Streaming can
// only be switched on while paired.
func (s *State) ToggleStreaming() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.streaming && !s.paired {
		return false, ErrNotPaired
	}
	s.streaming = !s.streaming
	if s.streaming {
		s.appendLogLocked("listening for audio")
	} else {
		s.appendLogLocked("audio stopped")
	}
	return s.streaming, nil
}

// CompletePairing binds ip as the session's peer and ends the discovery
// phase.
func (s *State) CompletePairing(ip string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.paired = true
	s.phoneIP = ip
	s.pairingActive = false
	s.appendLogLocked(fmt.Sprintf("paired with %s", ip))
}

// CancelPairing clears pairing_active after discovery gave up.
func (s *State) CancelPairing(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pairingActive = false
	s.appendLogLocked(reason)
}

// StopStreaming clears streaming without dropping the pairing.
func (s *State) StopStreaming(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.streaming = false
	s.appendLogLocked(reason)
}

// EndSession drops the pairing and stops streaming, logging reason. It
// returns false without logging if the session was already unpaired, so
// concurrent teardown paths reset the state exactly once.
func (s *State) EndSession(reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.paired && !s.streaming {
		return false
	}
	s.paired = false
	s.streaming = false
	s.phoneIP = ""
	s.appendLogLocked(reason)
	return true
}

// Disconnect is the user-initiated teardown. It clears every phase flag and
// returns the peer address that was bound, if any, so the caller can notify
// it.
func (s *State) Disconnect() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ip := s.phoneIP
	s.paired = false
	s.streaming = false
	s.pairingActive = false
	s.phoneIP = ""
	s.appendLogLocked("connection closed")
	return ip, ip != ""
}

// Touch records inbound traffic at now.
func (s *State) Touch(now time.Time) {
	s.mu.Lock()
	s.lastHeartbeat = now
	s.mu.Unlock()
}

// LastHeartbeat returns the time of the most recent inbound datagram.
func (s *State) LastHeartbeat() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastHeartbeat
}

// RecordAudio accounts one audio payload: the inter-arrival sample (ms) is
// pushed to the latency history and becomes the last latency, and the packet
// counter advances.
func (s *State) RecordAudio(sampleMs float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pushLatencyLocked(sampleMs)
	s.lastLatency = sampleMs
	s.hasLatency = true
	s.packetCount++
}

// AppendLog adds a timestamped entry to the log history.
func (s *State) AppendLog(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLogLocked(message)
}

// PushLatency adds a sample to the latency history.
func (s *State) PushLatency(sampleMs float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushLatencyLocked(sampleMs)
}

func (s *State) pushLatencyLocked(sampleMs float64) {
	s.latency.push(sampleMs)
}

func (s *State) appendLogLocked(message string) {
	stamp := s.timeProvider.Now().Format("15:04:05")
	s.logs.push(fmt.Sprintf("[%s] %s", stamp, message))

	logrus.WithFields(logrus.Fields{
		"function":   "State.AppendLog",
		"session_id": s.id,
	}).Info(message)
}
