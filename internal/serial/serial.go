// Package serial runs background loops one at a time.
package serial

import "sync"

// Runner starts background loops so that each new loop begins only after the
// previous one has returned. A loop that is restarted while its predecessor
// is still draining therefore never races it for a socket.
type Runner struct {
	mu      sync.Mutex
	done    chan struct{}
	lastErr error
	running int
}

// Go schedules fn behind any loop already started on r.
func (r *Runner) Go(fn func() error) {
	r.mu.Lock()
	prev := r.done
	done := make(chan struct{})
	r.done = done
	r.running++
	r.mu.Unlock()

	go func() {
		defer close(done)
		if prev != nil {
			<-prev
		}
		err := fn()

		r.mu.Lock()
		r.lastErr = err
		r.running--
		r.mu.Unlock()
	}()
}

// Wait blocks until every scheduled loop has returned and reports the error
// of the last one.
func (r *Runner) Wait() error {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()

	if done == nil {
		return nil
	}
	<-done

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// Running reports whether a scheduled loop has not yet returned.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running > 0
}
