// Package mangeomic turns a phone on the local network into a microphone for
// this machine.
//
// A Desktop owns one session. It finds the phone with a UDP broadcast
// handshake, then relays the phone's raw audio datagrams into a local
// playback device while exchanging liveness beacons with it. The playback
// device is typically a PulseAudio null sink whose monitor is exposed as a
// virtual microphone.
//
// # Lifecycle
//
//	desktop := mangeomic.New(mangeomic.DefaultOptions())
//	desktop.Start(ctx)           // discovery runs; the first phone to answer is paired
//	...
//	desktop.ToggleStreaming()    // relay runs until BYE, timeout, or toggle
//	desktop.Disconnect()         // reset and send BYE to the phone
//	desktop.Close()
//
// Presentation layers poll Snapshot for state and call the three command
// methods. All loops poll their governing flag once per bounded receive, so
// commands take effect within one receive timeout.
//
// # Security
//
// Peers are not authenticated and audio is not encrypted. Any host on the
// broadcast domain that answers the handshake becomes the paired phone.
package mangeomic
