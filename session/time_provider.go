package session

import (
	"sync"
	"time"
)

// TimeProvider abstracts the clock so jitter and liveness arithmetic can be
// driven deterministically in tests.
//
//	mockTime := NewMockTimeProvider(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
//	state := NewState(WithTimeProvider(mockTime))
//	mockTime.Advance(30 * time.Millisecond)
type TimeProvider interface {
	// Now returns the current time.
	Now() time.Time

	// Since returns the duration elapsed since t.
	Since(t time.Time) time.Duration
}

// DefaultTimeProvider implements TimeProvider using the system clock.
type DefaultTimeProvider struct{}

// Now returns the current system time.
func (DefaultTimeProvider) Now() time.Time {
	return time.Now()
}

// Since returns the duration elapsed since t using the system clock.
func (DefaultTimeProvider) Since(t time.Time) time.Duration {
	return time.Since(t)
}

// MockTimeProvider is a manually advanced clock. It is safe for concurrent use
// so it can be shared between a test and the loop it drives.
type MockTimeProvider struct {
	mu          sync.Mutex
	currentTime time.Time
}

// NewMockTimeProvider creates a MockTimeProvider starting at startTime.
func NewMockTimeProvider(startTime time.Time) *MockTimeProvider {
	return &MockTimeProvider{currentTime: startTime}
}

// Now returns the mock's current time.
func (m *MockTimeProvider) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentTime
}

// Since returns the duration since t based on the mock's current time.
func (m *MockTimeProvider) Since(t time.Time) time.Duration {
	return m.Now().Sub(t)
}

// Advance moves the mock time forward by d.
func (m *MockTimeProvider) Advance(d time.Duration) {
	m.mu.Lock()
	m.currentTime = m.currentTime.Add(d)
	m.mu.Unlock()
}

// Set moves the mock time to t.
func (m *MockTimeProvider) Set(t time.Time) {
	m.mu.Lock()
	m.currentTime = t
	m.mu.Unlock()
}

// getTimeProvider returns tp, or the system clock if tp is nil.
func getTimeProvider(tp TimeProvider) TimeProvider {
	if tp != nil {
		return tp
	}
	return DefaultTimeProvider{}
}
