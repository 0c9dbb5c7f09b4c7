// timer.go implements the proactive interjection debounce: one timer per
// group, with a bounded transcript buffer that collects group traffic while
// the timer runs and is drained exactly once when it fires.
package attention

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultBufferCap is the maximum number of buffered transcript lines per
// group. Arrivals beyond the cap are dropped, not overwritten.
const DefaultBufferCap = 20

// FireFunc is invoked once on a timer's natural expiry, never on
// cancellation. The token must be presented back to DrainIfCurrent.
type FireFunc func(groupID string, token uint64)

// groupTimer is one group's live debounce slot. Guarded by the table mutex.
type groupTimer struct {
	token uint64
	timer *time.Timer

	origin     string
	lines      []string
	lastSender string
}

// Transcript is the drained buffer handed to the interjection decision.
type Transcript struct {
	Origin string
	Lines  []string

	// LastSenderID is the author of the newest buffered line; interjections
	// mention this user.
	LastSenderID string
}

// TimerTable holds at most one live proactive timer per group. Restart,
// TryAppend and DrainIfCurrent linearize on one mutex, held only for the
// map mutation.
type TimerTable struct {
	mu      sync.Mutex
	timers  map[string]*groupTimer
	nextTok uint64
	cap     int
	logger  *slog.Logger
}

// NewTimerTable creates an empty timer table with the given per-group
// buffer cap (DefaultBufferCap when bufferCap <= 0).
func NewTimerTable(bufferCap int, logger *slog.Logger) *TimerTable {
	if bufferCap <= 0 {
		bufferCap = DefaultBufferCap
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TimerTable{
		timers: make(map[string]*groupTimer),
		cap:    bufferCap,
		logger: logger.With("component", "timers"),
	}
}

// Restart cancels any running timer for groupID, clears its buffer and
// starts a fresh timer. Cancellation and replacement happen in one critical
// section, so a firing from the superseded timer can never drain content
// contributed after the restart.
func (t *TimerTable) Restart(groupID, origin string, delay time.Duration, onFire FireFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if prev, ok := t.timers[groupID]; ok {
		prev.timer.Stop()
	}

	t.nextTok++
	gt := &groupTimer{
		token:  t.nextTok,
		origin: origin,
	}
	tok := gt.token
	gt.timer = time.AfterFunc(delay, func() {
		onFire(groupID, tok)
	})
	t.timers[groupID] = gt

	t.logger.Debug("proactive timer restarted", "group", groupID, "delay", delay)
}

// TryAppend adds a transcript line to the group's buffer. Returns false
// when no timer is running for the group or the buffer is full; neither is
// an error.
func (t *TimerTable) TryAppend(groupID, senderID, line string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	gt, ok := t.timers[groupID]
	if !ok || len(gt.lines) >= t.cap {
		return false
	}
	gt.lines = append(gt.lines, line)
	gt.lastSender = senderID
	return true
}

// DrainIfCurrent removes the group's timer state and returns its transcript,
// provided token still identifies the current timer. A callback from a
// superseded timer presents a stale token and gets ok=false. Drain and fire
// are a single atomic step; a drained timer cannot be cancelled.
func (t *TimerTable) DrainIfCurrent(groupID string, token uint64) (Transcript, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	gt, ok := t.timers[groupID]
	if !ok || gt.token != token {
		return Transcript{}, false
	}
	delete(t.timers, groupID)

	return Transcript{
		Origin:       gt.origin,
		Lines:        gt.lines,
		LastSenderID: gt.lastSender,
	}, true
}

// Cancel stops and removes the group's timer, if any. Used when the
// immersive path claims the turn.
func (t *TimerTable) Cancel(groupID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	gt, ok := t.timers[groupID]
	if !ok {
		return
	}
	gt.timer.Stop()
	delete(t.timers, groupID)

	t.logger.Debug("proactive timer cancelled", "group", groupID)
}

// CancelAll stops every running timer. Called on shutdown.
func (t *TimerTable) CancelAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for groupID, gt := range t.timers {
		gt.timer.Stop()
		delete(t.timers, groupID)
	}
}

// Len reports the number of running timers.
func (t *TimerTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers)
}
