package relay

import "errors"

var (
	// ErrSocketBindFailed indicates the streaming socket could not be bound.
	ErrSocketBindFailed = errors.New("stream socket bind failed")

	// ErrSinkUnavailable indicates the playback sink could not be opened.
	ErrSinkUnavailable = errors.New("playback sink unavailable")

	// ErrNotPaired indicates the relay was started without a paired peer.
	ErrNotPaired = errors.New("relay requires a paired peer")
)
