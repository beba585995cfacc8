// Package progress carries percent updates and the single terminal status
// of a running operation.
package progress

import "sync"

// Summary is the payload attached to a successful terminal event.
type Summary map[string]interface{}

// Reporter receives progress updates and exactly one terminal event.
type Reporter interface {
	Progress(percent int)
	Completed(summary Summary)
	Failed(err error)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Progress(int)      {}
func (Nop) Completed(Summary) {}
func (Nop) Failed(error)      {}

// Funcs adapts plain functions. Nil fields are ignored.
type Funcs struct {
	OnProgress  func(percent int)
	OnCompleted func(summary Summary)
	OnFailed    func(err error)
}

func (f Funcs) Progress(p int) {
	if f.OnProgress != nil {
		f.OnProgress(p)
	}
}

func (f Funcs) Completed(s Summary) {
	if f.OnCompleted != nil {
		f.OnCompleted(s)
	}
}

func (f Funcs) Failed(err error) {
	if f.OnFailed != nil {
		f.OnFailed(err)
	}
}

// Multi fans events out to several reporters in order.
type Multi []Reporter

func (m Multi) Progress(p int) {
	for _, r := range m {
		r.Progress(p)
	}
}

func (m Multi) Completed(s Summary) {
	for _, r := range m {
		r.Completed(s)
	}
}

func (m Multi) Failed(err error) {
	for _, r := range m {
		r.Failed(err)
	}
}

// Tracker guards a Reporter: percentages are clamped to [0,100] and never
// decrease, duplicate values are dropped, and only the first terminal event
// is forwarded. Events after the terminal one are ignored. The wrapped
// Reporter is called with the tracker's lock held, so events arrive in order
// and it must not call back into the tracker.
type Tracker struct {
	mu   sync.Mutex
	next Reporter
	last int
	done bool
}

// Track wraps r. A nil r reports nowhere.
func Track(r Reporter) *Tracker {
	if r == nil {
		r = Nop{}
	}
	if t, ok := r.(*Tracker); ok {
		return t
	}
	return &Tracker{next: r, last: -1}
}

func (t *Tracker) Progress(p int) {
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done || p <= t.last {
		return
	}
	t.last = p
	t.next.Progress(p)
}

// Step reports done of total units of work mapped into [from, to].
func (t *Tracker) Step(done, total, from, to int) {
	if total <= 0 {
		t.Progress(to)
		return
	}
	t.Progress(from + (to-from)*done/total)
}

func (t *Tracker) Completed(s Summary) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return
	}
	t.done = true
	if t.last < 100 {
		t.last = 100
		t.next.Progress(100)
	}
	t.next.Completed(s)
}

func (t *Tracker) Failed(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return
	}
	t.done = true
	t.next.Failed(err)
}

// Done reports whether a terminal event was forwarded.
func (t *Tracker) Done() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

// Last returns the last forwarded percentage, or -1.
func (t *Tracker) Last() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// Event is one recorded reporter call.
type Event struct {
	Kind    string // "progress", "completed" or "failed"
	Percent int
	Summary Summary
	Err     error
}

// Recorder keeps every event it receives.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Progress(p int) { r.add(Event{Kind: "progress", Percent: p}) }

func (r *Recorder) Completed(s Summary) { r.add(Event{Kind: "completed", Percent: 100, Summary: s}) }

func (r *Recorder) Failed(err error) { r.add(Event{Kind: "failed", Err: err}) }

func (r *Recorder) add(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Percents returns the recorded progress values in order.
func (r *Recorder) Percents() []int {
	var out []int
	for _, e := range r.Events() {
		if e.Kind == "progress" {
			out = append(out, e.Percent)
		}
	}
	return out
}
