package task

import (
	"sync"
	"time"

	"github.com/df07/go-scene-raytracer/pkg/log"
)

var logger = log.New("task")

// DefaultReapInterval is how often the reaper polls adopted waitables
const DefaultReapInterval = 10 * time.Millisecond

// Reaper owns abandoned work until it finishes. A single goroutine polls
// the adopted waitables and drops the finished ones.
type Reaper struct {
	mu       sync.Mutex
	pending  []Waitable
	closed   bool
	interval time.Duration
	stop     chan struct{}
	stopped  chan struct{}
	once     sync.Once
}

// NewReaper starts a reaper polling at the given interval
func NewReaper(interval time.Duration) *Reaper {
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	r := &Reaper{
		interval: interval,
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go r.run()
	return r
}

var (
	defaultReaper     *Reaper
	defaultReaperOnce sync.Once
)

// DefaultReaper returns the process-wide reaper, starting it on first use
func DefaultReaper() *Reaper {
	defaultReaperOnce.Do(func() {
		defaultReaper = NewReaper(DefaultReapInterval)
	})
	return defaultReaper
}

// Adopt takes ownership of w until it completes. A closed reaper no
// longer tracks anything; w is left to finish on its own.
func (r *Reaper) Adopt(w Waitable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		logger.Warning("reaper closed, not tracking adopted task")
		return
	}
	r.pending = append(r.pending, w)
}

// Pending returns how many adopted waitables have not finished yet
func (r *Reaper) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Close stops polling and waits for every adopted waitable to finish
func (r *Reaper) Close() {
	r.once.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()
		close(r.stop)
	})
	<-r.stopped
}

func (r *Reaper) run() {
	defer close(r.stopped)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.reap()
		case <-r.stop:
			r.drain()
			return
		}
	}
}

// reap drops every finished waitable
func (r *Reaper) reap() {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.pending[:0]
	for _, w := range r.pending {
		if !finished(w) {
			kept = append(kept, w)
		}
	}
	if dropped := len(r.pending) - len(kept); dropped > 0 {
		logger.Debugf("reaped %d finished tasks, %d pending", dropped, len(kept))
	}
	clear(r.pending[len(kept):])
	r.pending = kept
}

// drain blocks until everything adopted so far has finished
func (r *Reaper) drain() {
	r.mu.Lock()
	pending := r.pending
	r.pending = nil
	r.mu.Unlock()

	for _, w := range pending {
		<-w.Done()
	}
}

func finished(w Waitable) bool {
	select {
	case <-w.Done():
		return true
	default:
		return false
	}
}
