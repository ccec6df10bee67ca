// Package sink provides the local audio output used by the relay.
//
// Two collaborators are defined here. An AudioSinkProvider provisions the
// virtual playback device and reports whether it is ready. An Opener hands the
// relay an exclusively owned PlaybackSink for the duration of one streaming
// session; the relay writes raw audio bytes to it and terminates it on every
// exit path.
//
// The PulseAudio implementation drives pactl to create a null sink with a
// remapped monitor source (the virtual microphone other applications record
// from) and spawns pacat to play the relayed PCM into that sink. The Null
// implementation discards audio and is used for headless runs and tests.
package sink
