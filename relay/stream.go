package relay

import (
	"time"

	"github.com/opd-ai/mangeomic/protocol"
	"github.com/opd-ai/mangeomic/session"
	"github.com/opd-ai/mangeomic/sink"
	"github.com/sirupsen/logrus"
)

// stream is the per-session bookkeeping of one relay loop.
type stream struct {
	state *session.State
	sink  sink.PlaybackSink
	cfg   Config

	lastAudio     time.Time
	lastKeepAlive time.Time
}

func newStream(state *session.State, playback sink.PlaybackSink, cfg Config, now time.Time) *stream {
	state.Touch(now)
	return &stream{
		state:         state,
		sink:          playback,
		cfg:           cfg,
		lastAudio:     now,
		lastKeepAlive: now,
	}
}

// keepAliveDue reports whether a KEEP_ALIVE should go out at now, and if so
// restarts the interval.
func (s *stream) keepAliveDue(now time.Time) bool {
	if now.Sub(s.lastKeepAlive) < s.cfg.KeepAliveInterval {
		return false
	}
	s.lastKeepAlive = now
	return true
}

// handle processes one received datagram and reports whether the loop must
// stop.
func (s *stream) handle(data []byte, now time.Time) bool {
	s.state.Touch(now)

	switch protocol.Classify(data) {
	case protocol.KindBye:
		s.state.EndSession(LogPeerDisconnected)
		return true
	case protocol.KindHeartbeat:
		return false
	}

	sample := float64(now.Sub(s.lastAudio).Milliseconds())
	s.lastAudio = now
	s.state.RecordAudio(sample)

	if _, err := s.sink.Write(data); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "stream.handle",
			"size":     len(data),
			"error":    err.Error(),
		}).Debug("Dropped audio payload")
	}
	return false
}

// expired ends the session if the link has been silent for the heartbeat
// timeout.
func (s *stream) expired(now time.Time) bool {
	if now.Sub(s.state.LastHeartbeat()) < s.cfg.HeartbeatTimeout {
		return false
	}
	s.state.EndSession(LogCommunicationLost)
	return true
}
