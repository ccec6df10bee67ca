// Package relay carries audio from the paired phone to the local playback
// sink and watches the link's health.
//
// # Liveness
//
// While streaming, the relay sends KEEP_ALIVE to the phone every 500ms and
// treats every datagram it receives (audio, HEARTBEAT or BYE) as proof of
// life. If nothing arrives for 5s the link is declared lost. The asymmetry
// tolerates about ten missed beacons before tearing down.
//
// # Jitter
//
// Each audio payload yields one latency sample: the gap in milliseconds since
// the previous audio payload. Heartbeats are excluded from the timing base.
// The sample is an inter-arrival jitter proxy, not a round-trip time; the
// peers share no clock.
//
// # Teardown
//
// The loop exits when the phone sends BYE, when the link times out, when
// streaming is switched off, or when its context is cancelled. The playback
// sink is terminated on every one of those paths.
package relay
