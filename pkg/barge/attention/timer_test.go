package attention

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

// drainRecorder collects successful drains from timer firings.
type drainRecorder struct {
	tbl *TimerTable

	mu     sync.Mutex
	drains []Transcript
	fired  chan struct{}
}

func newDrainRecorder(tbl *TimerTable) *drainRecorder {
	return &drainRecorder{tbl: tbl, fired: make(chan struct{}, 16)}
}

func (r *drainRecorder) onFire(groupID string, token uint64) {
	if transcript, ok := r.tbl.DrainIfCurrent(groupID, token); ok {
		r.mu.Lock()
		r.drains = append(r.drains, transcript)
		r.mu.Unlock()
	}
	r.fired <- struct{}{}
}

func (r *drainRecorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timer never fired")
	}
}

func (r *drainRecorder) snapshot() []Transcript {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Transcript(nil), r.drains...)
}

func TestTimerTable_FireDrainsBuffer(t *testing.T) {
	t.Parallel()

	tbl := NewTimerTable(0, nil)
	rec := newDrainRecorder(tbl)

	tbl.Restart("g1", "origin:g1", 20*time.Millisecond, rec.onFire)
	if !tbl.TryAppend("g1", "u1", "alice(u1): hi") {
		t.Fatal("append while timer is live must succeed")
	}
	if !tbl.TryAppend("g1", "u2", "bob(u2): hello") {
		t.Fatal("append while timer is live must succeed")
	}

	rec.wait(t)

	drains := rec.snapshot()
	if len(drains) != 1 {
		t.Fatalf("drains = %d, want 1", len(drains))
	}
	got := drains[0]
	if got.Origin != "origin:g1" {
		t.Errorf("origin = %q, want origin:g1", got.Origin)
	}
	if got.LastSenderID != "u2" {
		t.Errorf("last sender = %q, want u2", got.LastSenderID)
	}
	if len(got.Lines) != 2 || got.Lines[0] != "alice(u1): hi" || got.Lines[1] != "bob(u2): hello" {
		t.Errorf("lines = %v, out of order or wrong", got.Lines)
	}
	if got := tbl.Len(); got != 0 {
		t.Errorf("Len = %d, want 0 after drain", got)
	}
}

func TestTimerTable_Supersession(t *testing.T) {
	t.Parallel()

	tbl := NewTimerTable(0, nil)
	rec := newDrainRecorder(tbl)

	tbl.Restart("g1", "origin:g1", 30*time.Millisecond, rec.onFire)
	tbl.TryAppend("g1", "u1", "before restart")
	tbl.Restart("g1", "origin:g1", 30*time.Millisecond, rec.onFire)
	tbl.TryAppend("g1", "u1", "after restart")

	if got := tbl.Len(); got != 1 {
		t.Fatalf("Len = %d, want exactly 1 live timer", got)
	}

	rec.wait(t)

	drains := rec.snapshot()
	if len(drains) != 1 {
		t.Fatalf("drains = %d, want 1 (superseded firing must be a no-op)", len(drains))
	}
	if len(drains[0].Lines) != 1 || drains[0].Lines[0] != "after restart" {
		t.Errorf("lines = %v, want only content after the second restart", drains[0].Lines)
	}
}

func TestTimerTable_BufferCap(t *testing.T) {
	t.Parallel()

	tbl := NewTimerTable(20, nil)
	rec := newDrainRecorder(tbl)

	tbl.Restart("g1", "origin:g1", 50*time.Millisecond, rec.onFire)

	appended := 0
	for i := 1; i <= 25; i++ {
		if tbl.TryAppend("g1", "u1", fmt.Sprintf("line %d", i)) {
			appended++
		}
	}
	if appended != 20 {
		t.Errorf("appended = %d, want 20", appended)
	}

	rec.wait(t)

	drains := rec.snapshot()
	if len(drains) != 1 {
		t.Fatalf("drains = %d, want 1", len(drains))
	}
	lines := drains[0].Lines
	if len(lines) != 20 {
		t.Fatalf("retained = %d lines, want 20", len(lines))
	}
	for i, line := range lines {
		if want := fmt.Sprintf("line %d", i+1); line != want {
			t.Fatalf("lines[%d] = %q, want %q", i, line, want)
		}
	}
}

func TestTimerTable_AppendWithoutTimer(t *testing.T) {
	t.Parallel()

	tbl := NewTimerTable(0, nil)
	if tbl.TryAppend("g1", "u1", "orphan line") {
		t.Error("append without a live timer must be a no-op")
	}
}

func TestTimerTable_CancelPreventsFire(t *testing.T) {
	t.Parallel()

	tbl := NewTimerTable(0, nil)
	rec := newDrainRecorder(tbl)

	tbl.Restart("g1", "origin:g1", 20*time.Millisecond, rec.onFire)
	tbl.TryAppend("g1", "u1", "claimed by immersive path")
	tbl.Cancel("g1")

	select {
	case <-rec.fired:
		t.Fatal("cancelled timer must not fire")
	case <-time.After(100 * time.Millisecond):
	}
	if got := tbl.Len(); got != 0 {
		t.Errorf("Len = %d, want 0 after cancel", got)
	}
}

func TestTimerTable_StaleTokenDrainsNothing(t *testing.T) {
	t.Parallel()

	tbl := NewTimerTable(0, nil)
	rec := newDrainRecorder(tbl)

	tbl.Restart("g1", "origin:g1", 20*time.Millisecond, rec.onFire)
	rec.wait(t)

	// The firing already drained; the same token presented again is stale.
	if _, ok := tbl.DrainIfCurrent("g1", 1); ok {
		t.Error("drain with a consumed token must fail")
	}

	// A token from a superseded timer is equally stale.
	tbl.Restart("g1", "origin:g1", time.Hour, func(string, uint64) {})
	tbl.Restart("g1", "origin:g1", time.Hour, func(string, uint64) {})
	if _, ok := tbl.DrainIfCurrent("g1", 2); ok {
		t.Error("drain with a superseded token must fail")
	}
	tbl.CancelAll()
}

func TestTimerTable_CancelAll(t *testing.T) {
	t.Parallel()

	tbl := NewTimerTable(0, nil)
	noop := func(string, uint64) {}

	tbl.Restart("g1", "o1", time.Hour, noop)
	tbl.Restart("g2", "o2", time.Hour, noop)

	tbl.CancelAll()

	if got := tbl.Len(); got != 0 {
		t.Errorf("Len = %d, want 0 after CancelAll", got)
	}
}
