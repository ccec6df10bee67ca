package session

// Status summarizes the session phase for display.
type Status int

const (
	StatusIdle Status = iota
	StatusSearching
	StatusConnected
	StatusStreaming
)

func (s Status) String() string {
	switch s {
	case StatusSearching:
		return "searching"
	case StatusConnected:
		return "connected"
	case StatusStreaming:
		return "streaming"
	default:
		return "idle"
	}
}

// DegradedLatencyMs is the jitter above which the link is shown as degraded.
const DegradedLatencyMs = 80

// Snapshot is a read-only copy of the session for the presentation layer.
type Snapshot struct {
	SessionID      string
	PairingActive  bool
	Paired         bool
	Streaming      bool
	PhoneIP        string
	Logs           []string
	LastLatency    *float64
	LatencyHistory []float64
	PacketCount    uint64
}

// Snapshot copies the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		SessionID:      s.id,
		PairingActive:  s.pairingActive,
		Paired:         s.paired,
		Streaming:      s.streaming,
		PhoneIP:        s.phoneIP,
		Logs:           s.logs.snapshot(),
		LatencyHistory: s.latency.snapshot(),
		PacketCount:    s.packetCount,
	}
	if s.hasLatency {
		lat := s.lastLatency
		snap.LastLatency = &lat
	}
	return snap
}

// Status derives the display phase. Streaming wins over connected, which
// wins over searching.
func (s Snapshot) Status() Status {
	switch {
	case s.Paired && s.Streaming:
		return StatusStreaming
	case s.Paired:
		return StatusConnected
	case s.PairingActive:
		return StatusSearching
	default:
		return StatusIdle
	}
}

// LatencyMs returns the last jitter sample, or 0 if none was recorded yet.
func (s Snapshot) LatencyMs() float64 {
	if s.LastLatency == nil {
		return 0
	}
	return *s.LastLatency
}

// Degraded reports whether the last jitter sample exceeds DegradedLatencyMs.
func (s Snapshot) Degraded() bool {
	return s.LatencyMs() > DegradedLatencyMs
}
