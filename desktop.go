package mangeomic

import (
	"context"
	"sync"

	"github.com/opd-ai/mangeomic/discovery"
	"github.com/opd-ai/mangeomic/relay"
	"github.com/opd-ai/mangeomic/session"
	"github.com/opd-ai/mangeomic/sink"
	"github.com/sirupsen/logrus"
)

// ErrAlreadyPaired is returned by TogglePairing while a phone is paired.
var ErrAlreadyPaired = session.ErrAlreadyPaired

// ErrNotPaired is returned by ToggleStreaming before a phone is paired.
var ErrNotPaired = session.ErrNotPaired

// Options configures a Desktop.
type Options struct {
	Discovery discovery.Config
	Relay     relay.Config

	// Provider provisions the virtual playback device. Defaults to sink.Null.
	Provider sink.AudioSinkProvider
	// Opener supplies one playback sink per streaming session. Defaults to
	// sink.Null.
	Opener sink.Opener

	TimeProvider session.TimeProvider
}

// DefaultOptions uses the standard ports and a discarding sink.
func DefaultOptions() Options {
	return Options{
		Discovery: discovery.DefaultConfig(),
		Relay:     relay.DefaultConfig(),
		Provider:  sink.Null{},
		Opener:    sink.Null{},
	}
}

// Desktop is the desktop peer: one session, its discovery service and its
// relay, driven by user commands.
type Desktop struct {
	state     *session.State
	discovery *discovery.Service
	relay     *relay.Relay
	provider  sink.AudioSinkProvider
	peerPort  int

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Desktop with a fresh session. Nothing runs until Start.
func New(opts Options) *Desktop {
	if opts.Provider == nil {
		opts.Provider = sink.Null{}
	}
	if opts.Opener == nil {
		opts.Opener = sink.Null{}
	}

	var stateOpts []session.Option
	if opts.TimeProvider != nil {
		stateOpts = append(stateOpts, session.WithTimeProvider(opts.TimeProvider))
	}
	state := session.NewState(stateOpts...)

	ctx, cancel := context.WithCancel(context.Background())
	return &Desktop{
		state:     state,
		discovery: discovery.NewService(state, opts.Discovery),
		relay:     relay.New(state, opts.Opener, opts.Relay),
		provider:  opts.Provider,
		peerPort:  opts.Relay.PeerPort,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start provisions the playback device and, since a new session begins with
// pairing active, launches discovery. Loops started later by commands stop
// when ctx is cancelled or Close is called.
func (d *Desktop) Start(ctx context.Context) {
	d.mu.Lock()
	d.cancel()
	d.ctx, d.cancel = context.WithCancel(ctx)
	d.mu.Unlock()

	if d.provider.EnsureReady() {
		d.state.AppendLog("virtual microphone ready")
	} else {
		d.state.AppendLog("virtual microphone unavailable")
	}

	if d.state.PairingActive() {
		d.discovery.Start(d.loopContext())
	}

	logrus.WithFields(logrus.Fields{
		"function":   "Desktop.Start",
		"session_id": d.state.ID(),
	}).Info("Desktop peer started")
}

// Close stops every loop and waits for them to exit.
func (d *Desktop) Close() error {
	d.mu.Lock()
	d.cancel()
	d.mu.Unlock()

	_ = d.discovery.Wait()
	_ = d.relay.Wait()
	return nil
}

func (d *Desktop) loopContext() context.Context {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ctx
}

// TogglePairing switches discovery on or off. It fails with ErrAlreadyPaired
// while a phone is paired.
func (d *Desktop) TogglePairing() error {
	active, err := d.state.TogglePairing()
	if err != nil {
		return err
	}
	if active {
		d.discovery.Start(d.loopContext())
	}
	return nil
}

// ToggleStreaming switches the audio relay on or off. It fails with
// ErrNotPaired before a phone is paired.
func (d *Desktop) ToggleStreaming() error {
	on, err := d.state.ToggleStreaming()
	if err != nil {
		return err
	}
	if on {
		d.relay.Start(d.loopContext())
	}
	return nil
}

// Disconnect tears the session down and tells the phone, best effort.
func (d *Desktop) Disconnect() {
	ip, ok := d.state.Disconnect()
	if ok {
		relay.NotifyDisconnect(ip, d.peerPort)
	}
}

// Snapshot returns a read-only copy of the session.
func (d *Desktop) Snapshot() session.Snapshot {
	return d.state.Snapshot()
}

// SinkReady reports whether the virtual playback device exists.
func (d *Desktop) SinkReady() bool {
	return d.provider.IsReady()
}

// State exposes the shared session record.
func (d *Desktop) State() *session.State {
	return d.state
}
