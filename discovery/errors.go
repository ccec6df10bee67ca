package discovery

import "errors"

// ErrSocketBindFailed indicates the discovery socket could not be bound. The
// attempt is abandoned; the bind is not retried.
var ErrSocketBindFailed = errors.New("discovery socket bind failed")
