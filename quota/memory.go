package quota

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type usageKey struct {
	userID  string
	feature Feature
	period  string
}

// MemoryLedger keeps usage in process memory.
type MemoryLedger struct {
	mu     sync.Mutex
	limits Limits
	usage  map[usageKey]int
	now    func() time.Time
}

var _ Consumer = (*MemoryLedger)(nil)

// NewMemoryLedger creates a MemoryLedger enforcing limits.
func NewMemoryLedger(limits Limits) *MemoryLedger {
	if limits == nil {
		limits = DefaultLimits
	}
	return &MemoryLedger{limits: limits, usage: make(map[usageKey]int), now: time.Now}
}

// Consume implements Consumer.
func (l *MemoryLedger) Consume(_ context.Context, userID string, feature Feature, amount int) error {
	if amount <= 0 {
		return fmt.Errorf("invalid quota amount %d", amount)
	}
	limit, metered := l.limits[feature]
	if !metered {
		return nil
	}

	p, reset := period(l.now())
	key := usageKey{userID: userID, feature: feature, period: p}

	l.mu.Lock()
	defer l.mu.Unlock()

	used := l.usage[key]
	if used+amount > limit {
		return &ExceededError{UserID: userID, Feature: feature, Limit: limit, Used: used, ResetAt: reset}
	}
	l.usage[key] = used + amount
	return nil
}

// Used returns the usage of feature by userID in the current period.
func (l *MemoryLedger) Used(_ context.Context, userID string, feature Feature) (int, error) {
	p, _ := period(l.now())
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.usage[usageKey{userID: userID, feature: feature, period: p}], nil
}
