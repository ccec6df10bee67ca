package sink

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrTerminated is returned by Write after Terminate.
var ErrTerminated = errors.New("playback sink terminated")

// AudioSinkProvider provisions and checks the local playback device.
type AudioSinkProvider interface {
	// EnsureReady creates the device if needed and reports whether it exists.
	EnsureReady() bool
	// IsReady reports whether the device currently exists.
	IsReady() bool
}

// PlaybackSink accepts raw audio bytes for output.
type PlaybackSink interface {
	Write(p []byte) (int, error)
	// Terminate releases the sink. It is safe to call more than once.
	Terminate() error
}

// Opener acquires a fresh PlaybackSink for one streaming session.
type Opener interface {
	Open() (PlaybackSink, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func() (PlaybackSink, error)

// Open calls f.
func (f OpenerFunc) Open() (PlaybackSink, error) {
	return f()
}

// Null is a provider and opener whose sinks discard everything written.
type Null struct{}

// EnsureReady always succeeds.
func (Null) EnsureReady() bool { return true }

// IsReady always succeeds.
func (Null) IsReady() bool { return true }

// Open returns a new NullSink.
func (Null) Open() (PlaybackSink, error) {
	return &NullSink{}, nil
}

// NullSink counts and discards audio.
type NullSink struct {
	written    atomic.Uint64
	once       sync.Once
	terminated atomic.Bool
}

// Write discards p.
func (n *NullSink) Write(p []byte) (int, error) {
	if n.terminated.Load() {
		return 0, ErrTerminated
	}
	n.written.Add(uint64(len(p)))
	return len(p), nil
}

// Terminate marks the sink closed.
func (n *NullSink) Terminate() error {
	n.once.Do(func() { n.terminated.Store(true) })
	return nil
}

// Written returns the number of bytes accepted so far.
func (n *NullSink) Written() uint64 {
	return n.written.Load()
}
