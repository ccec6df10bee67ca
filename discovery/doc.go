// Package discovery locates the phone on the local network.
//
// The Service broadcasts the DISCOVER sentinel on the discovery port about
// once a second and waits for a HI reply. The first host that answers HI is
// acknowledged with OK and bound to the session as the paired peer; the loop
// then stops for good. Anything else received on the socket is ignored.
//
// The loop polls the session's pairing flag once per iteration, so switching
// pairing off takes effect within one receive timeout plus one interval.
//
// Example:
//
//	state := session.NewState()
//	svc := discovery.NewService(state, discovery.DefaultConfig())
//	svc.Start(ctx)
//	if err := svc.Wait(); errors.Is(err, discovery.ErrSocketBindFailed) {
//	    // port in use
//	}
package discovery
