package elevation

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// ErrCircuitOpen is returned without calling EPQS while the breaker is open.
var ErrCircuitOpen = eris.New("elevation: circuit breaker is open")

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// breaker stops calling an unavailable EPQS after consecutive failures. Once
// resetAfter has elapsed a single trial request is let through; other callers
// keep failing fast until its outcome is recorded.
type breaker struct {
	threshold  int
	resetAfter time.Duration
	now        func() time.Time

	mu          sync.Mutex
	state       breakerState
	failures    int
	lastFailure time.Time
	trial       bool
}

func newBreaker(threshold int, resetAfter time.Duration) *breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if resetAfter <= 0 {
		resetAfter = 30 * time.Second
	}
	return &breaker{threshold: threshold, resetAfter: resetAfter, now: time.Now}
}

func (b *breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerOpen:
		if b.now().Sub(b.lastFailure) < b.resetAfter {
			return ErrCircuitOpen
		}
		b.state = breakerHalfOpen
		b.trial = true
	case breakerHalfOpen:
		if b.trial {
			return ErrCircuitOpen
		}
		b.trial = true
	}
	return nil
}

// abandon releases a trial whose caller gave up before an outcome was known.
func (b *breaker) abandon() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trial = false
}

// record counts a call outcome. Only transport and server failures count;
// a no-data answer means the service is healthy.
func (b *breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.trial = false
	if err == nil || eris.Is(err, ErrNoData) {
		b.state = breakerClosed
		b.failures = 0
		return
	}

	b.failures++
	b.lastFailure = b.now()
	if b.state == breakerHalfOpen || b.failures >= b.threshold {
		b.state = breakerOpen
	}
}
