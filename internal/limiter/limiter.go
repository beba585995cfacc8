package limiter

import (
	"strings"
	"sync"
)

// PerUser bounds the number of in-flight jobs per user on this instance.
type PerUser struct {
	max int
	mu  sync.Mutex
	sem map[string]chan struct{}
}

func New(maxPerUser int) *PerUser {
	if maxPerUser <= 0 {
		maxPerUser = 1
	}
	return &PerUser{max: maxPerUser, sem: map[string]chan struct{}{}}
}

func key(user string) string { return strings.ToLower(strings.TrimSpace(user)) }

// Allow tries to reserve a slot for user. It returns a release function and
// true if allowed; otherwise a no-op release and false. Release is idempotent.
func (l *PerUser) Allow(user string) (func(), bool) {
	k := key(user)
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.sem[k]
	if !ok {
		ch = make(chan struct{}, l.max)
		l.sem[k] = ch
	}
	select {
	case ch <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { l.release(k, ch) }) }, true
	default:
		return func() {}, false
	}
}

func (l *PerUser) release(k string, ch chan struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	<-ch
	// drop idle users so the map does not grow with every id ever seen
	if len(ch) == 0 && l.sem[k] == ch {
		delete(l.sem, k)
	}
}

// InFlight returns the number of reserved slots for user.
func (l *PerUser) InFlight(user string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ch, ok := l.sem[key(user)]; ok {
		return len(ch)
	}
	return 0
}
