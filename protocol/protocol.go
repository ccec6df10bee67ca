package protocol

import "bytes"

// Default UDP ports.
const (
	DiscoveryPort = 50004
	StreamPort    = 50006
)

// Sentinel payloads. Callers must not modify these slices.
var (
	Discover  = []byte("MANGEO_DISCOVER")
	Hi        = []byte("MANGEO_HI")
	OK        = []byte("MANGEO_OK")
	Bye       = []byte("MANGEO_BYE")
	Heartbeat = []byte("MANGOVAR")
	KeepAlive = []byte("MANGOHI")
)

// Kind identifies what a received datagram means.
type Kind uint8

const (
	// KindAudio is any payload that is not a sentinel.
	KindAudio Kind = iota
	KindDiscover
	KindHi
	KindOK
	KindBye
	KindHeartbeat
	KindKeepAlive
)

// String returns the sentinel name for logging.
func (k Kind) String() string {
	switch k {
	case KindDiscover:
		return "DISCOVER"
	case KindHi:
		return "HI"
	case KindOK:
		return "OK"
	case KindBye:
		return "BYE"
	case KindHeartbeat:
		return "HEARTBEAT"
	case KindKeepAlive:
		return "KEEP_ALIVE"
	default:
		return "AUDIO"
	}
}

// Classify matches payload byte-for-byte against the sentinels. Payloads that
// only contain a sentinel as a prefix, or differ by trailing bytes, are audio.
func Classify(payload []byte) Kind {
	switch {
	case bytes.Equal(payload, Bye):
		return KindBye
	case bytes.Equal(payload, Heartbeat):
		return KindHeartbeat
	case bytes.Equal(payload, Hi):
		return KindHi
	case bytes.Equal(payload, OK):
		return KindOK
	case bytes.Equal(payload, Discover):
		return KindDiscover
	case bytes.Equal(payload, KeepAlive):
		return KindKeepAlive
	default:
		return KindAudio
	}
}
