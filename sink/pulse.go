package sink

import (
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Default PulseAudio device names and playback format.
const (
	DefaultSinkName    = "mangeomic_sink"
	DefaultSourceName  = "mangeomic_mic"
	DefaultFormat      = "s16le"
	DefaultSampleRate  = 44100
	DefaultChannels    = 1
	DefaultLatencyMsec = 20
)

// PulseProvider provisions a null sink plus a remapped monitor source through
// pactl. The source is what other applications see as a microphone.
type PulseProvider struct {
	Runner     Runner
	SinkName   string
	SourceName string

	// CleanupDelay and SettleDelay give the sound server time to register
	// module changes before the next step.
	CleanupDelay time.Duration
	SettleDelay  time.Duration

	sleep func(time.Duration)
}

// NewPulseProvider returns a provider for the given device names using the
// real pactl binary.
func NewPulseProvider(sinkName, sourceName string) *PulseProvider {
	return &PulseProvider{
		Runner:       ExecRunner{},
		SinkName:     sinkName,
		SourceName:   sourceName,
		CleanupDelay: 200 * time.Millisecond,
		SettleDelay:  500 * time.Millisecond,
		sleep:        time.Sleep,
	}
}

// IsReady lists sources and looks for the virtual microphone by name or by
// description.
func (p *PulseProvider) IsReady() bool {
	out, err := p.Runner.Output("pactl", "list", "sources", "short")
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "PulseProvider.IsReady",
			"error":    err.Error(),
		}).Debug("pactl list failed")
		return false
	}
	listing := strings.ToLower(string(out))
	return strings.Contains(listing, strings.ToLower(p.SourceName)) ||
		strings.Contains(listing, "mangeomic_virtual_mic")
}

// EnsureReady creates the device if it does not already exist. Stale modules
// from earlier runs are unloaded first. The new source is made the default
// when it shows up.
func (p *PulseProvider) EnsureReady() bool {
	logger := logrus.WithFields(logrus.Fields{
		"function": "PulseProvider.EnsureReady",
		"sink":     p.SinkName,
		"source":   p.SourceName,
	})

	if p.IsReady() {
		logger.Info("Virtual microphone already present")
		return true
	}

	_ = p.Runner.Run("pactl", "unload-module", "module-remap-source")
	_ = p.Runner.Run("pactl", "unload-module", "module-null-sink")
	p.wait(p.CleanupDelay)

	if err := p.Runner.Run("pactl", "load-module", "module-null-sink",
		"sink_name="+p.SinkName,
		"sink_properties=device.description='MangeoMic_Backend'",
	); err != nil {
		logger.WithError(err).Error("Failed to load null sink")
		return false
	}
	p.wait(p.SettleDelay)

	if err := p.Runner.Run("pactl", "load-module", "module-remap-source",
		"master="+p.SinkName+".monitor",
		"source_name="+p.SourceName,
		"source_properties=device.description='MangeoMic_Virtual_Mic'",
	); err != nil {
		logger.WithError(err).Error("Failed to load remap source")
		return false
	}
	p.wait(p.SettleDelay)

	if !p.IsReady() {
		logger.Warn("Virtual microphone created but not listed yet")
		return false
	}

	_ = p.Runner.Run("pactl", "set-default-source", p.SourceName)
	logger.Info("Virtual microphone registered")
	return true
}

func (p *PulseProvider) wait(d time.Duration) {
	if d <= 0 {
		return
	}
	if p.sleep == nil {
		p.sleep = time.Sleep
	}
	p.sleep(d)
}

// PacatOpener spawns one pacat playback process per streaming session.
type PacatOpener struct {
	Runner      Runner
	SinkName    string
	Format      string
	SampleRate  int
	Channels    int
	LatencyMsec int

	// Command builds the process; it defaults to exec.Command.
	Command func(name string, args ...string) *exec.Cmd
}

// NewPacatOpener returns an opener playing into sinkName with the default
// PCM format.
func NewPacatOpener(sinkName string) *PacatOpener {
	return &PacatOpener{
		Runner:      ExecRunner{},
		SinkName:    sinkName,
		Format:      DefaultFormat,
		SampleRate:  DefaultSampleRate,
		Channels:    DefaultChannels,
		LatencyMsec: DefaultLatencyMsec,
		Command:     exec.Command,
	}
}

// Args returns the pacat command line.
func (o *PacatOpener) Args() []string {
	return []string{
		"--playback",
		"--format=" + o.Format,
		fmt.Sprintf("--rate=%d", o.SampleRate),
		fmt.Sprintf("--channels=%d", o.Channels),
		"--device=" + o.SinkName,
		fmt.Sprintf("--latency-msec=%d", o.LatencyMsec),
	}
}

// Open kills players left over from an earlier session and starts a new
// pacat with its stdin attached to the returned sink.
func (o *PacatOpener) Open() (PlaybackSink, error) {
	if o.Runner != nil {
		_ = o.Runner.Run("pkill", "-f", "pacat.*mangeomic")
	}

	command := o.Command
	if command == nil {
		command = exec.Command
	}
	cmd := command("pacat", o.Args()...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("pacat stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start pacat: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "PacatOpener.Open",
		"pid":      cmd.Process.Pid,
		"device":   o.SinkName,
	}).Info("Playback process started")

	return &processSink{cmd: cmd, stdin: stdin}, nil
}

// processSink writes to a child process's stdin.
type processSink struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser

	mu         sync.Mutex
	terminated bool
}

func (s *processSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminated {
		return 0, ErrTerminated
	}
	return s.stdin.Write(p)
}

// Terminate closes stdin, kills the process and reaps it.
func (s *processSink) Terminate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminated {
		return nil
	}
	s.terminated = true

	_ = s.stdin.Close()
	if err := s.cmd.Process.Kill(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "processSink.Terminate",
			"error":    err.Error(),
		}).Debug("Kill failed, process probably exited")
	}
	_ = s.cmd.Wait()
	return nil
}
