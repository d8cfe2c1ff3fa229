package ratelimit

import (
	"sync"
	"time"
)

// WindowConfig bounds one sliding-window counter.
type WindowConfig struct {
	Window time.Duration
	Limit  int
}

// window is a single sliding-window counter: a timestamp deque pruned to
// the trailing Window on every check.
type window struct {
	cfg   WindowConfig
	times []time.Time
}

func (w *window) prune(now time.Time) {
	cutoff := now.Add(-w.cfg.Window)
	i := 0
	for i < len(w.times) && w.times[i].Before(cutoff) {
		i++
	}
	w.times = w.times[i:]
}

func (w *window) allow(now time.Time) bool {
	w.prune(now)
	if len(w.times) >= w.cfg.Limit {
		return false
	}
	w.times = append(w.times, now)
	return true
}

// OperatorLimiter enforces spec.md §5's two independent sliding-window
// counters per standard operator (5-minute, 1-hour), with a one-message
// "pending replay" slot so a rejected message can be resumed with a bare
// "continue" once a window clears, instead of re-entering the text.
type OperatorLimiter struct {
	mu       sync.Mutex
	short    map[string]*window
	long     map[string]*window
	pending  map[string]*PendingReplay
	shortCfg WindowConfig
	longCfg  WindowConfig
}

// PendingReplay holds an operator message that was rejected for exceeding a
// rate-limit window, to be resumed verbatim on the next "continue".
type PendingReplay struct {
	OperatorID string
	Text       string
	CreatedAt  time.Time
}

// DefaultShortWindow and DefaultLongWindow are spec.md §5's 5-minute and
// 1-hour operator rate-limit windows.
var (
	DefaultShortWindow = WindowConfig{Window: 5 * time.Minute, Limit: 20}
	DefaultLongWindow  = WindowConfig{Window: time.Hour, Limit: 200}
)

// NewOperatorLimiter builds a limiter using the given window configs.
func NewOperatorLimiter(short, long WindowConfig) *OperatorLimiter {
	return &OperatorLimiter{
		short:    make(map[string]*window),
		long:     make(map[string]*window),
		pending:  make(map[string]*PendingReplay),
		shortCfg: short,
		longCfg:  long,
	}
}

// Allow checks whether operatorID may send another message right now,
// consuming a slot in both windows if so. Admin operators should bypass
// this call entirely per spec.md §5.
func (l *OperatorLimiter) Allow(operatorID string) bool {
	return l.AllowAt(operatorID, time.Now())
}

// AllowAt is Allow with an explicit clock, for deterministic tests.
func (l *OperatorLimiter) AllowAt(operatorID string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	shortWin, ok := l.short[operatorID]
	if !ok {
		shortWin = &window{cfg: l.shortCfg}
		l.short[operatorID] = shortWin
	}
	longWin, ok := l.long[operatorID]
	if !ok {
		longWin = &window{cfg: l.longCfg}
		l.long[operatorID] = longWin
	}

	shortWin.prune(now)
	longWin.prune(now)
	if len(shortWin.times) >= l.shortCfg.Limit || len(longWin.times) >= l.longCfg.Limit {
		return false
	}

	shortWin.times = append(shortWin.times, now)
	longWin.times = append(longWin.times, now)
	return true
}

// SetPending stores text as operatorID's pending replay, overwriting any
// prior one: spec.md's gate holds at most one rejected message per operator.
func (l *OperatorLimiter) SetPending(operatorID, text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending[operatorID] = &PendingReplay{OperatorID: operatorID, Text: text, CreatedAt: time.Now()}
}

// TakePending returns and clears operatorID's pending replay, if any.
func (l *OperatorLimiter) TakePending(operatorID string) (*PendingReplay, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.pending[operatorID]
	if ok {
		delete(l.pending, operatorID)
	}
	return p, ok
}
