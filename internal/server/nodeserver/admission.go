package nodeserver

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/yndnr/dirmesh-go/pkg/cmap"
)

// admissionEntry is the limiter of one source address.
type admissionEntry struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64
}

// admission rejects a connection from an address that connected less than
// interval ago. A zero interval admits everything.
type admission struct {
	interval time.Duration
	entries  *cmap.Map[string, *admissionEntry]
}

func newAdmission(interval time.Duration) *admission {
	return &admission{
		interval: interval,
		entries:  cmap.New[string, *admissionEntry](),
	}
}

// Allow reports whether a connection from ip is admitted at now.
func (a *admission) Allow(ip string, now time.Time) bool {
	if a.interval <= 0 {
		return true
	}
	e, ok := a.entries.Get(ip)
	if !ok {
		e, _ = a.entries.GetOrSet(ip, &admissionEntry{
			limiter: rate.NewLimiter(rate.Every(a.interval), 1),
		})
	}
	e.lastSeen.Store(now.UnixNano())
	return e.limiter.AllowN(now, 1)
}

// Prune drops the entries idle for longer than the interval and returns
// how many were dropped. Their limiters are full again, so forgetting them
// changes no decision.
func (a *admission) Prune(now time.Time) int {
	cutoff := now.Add(-a.interval).UnixNano()
	idle := func(e *admissionEntry) bool { return e.lastSeen.Load() < cutoff }

	var candidates []string
	a.entries.Range(func(ip string, e *admissionEntry) bool {
		if idle(e) {
			candidates = append(candidates, ip)
		}
		return true
	})
	dropped := 0
	for _, ip := range candidates {
		if a.entries.DeleteIf(ip, idle) {
			dropped++
		}
	}
	return dropped
}

// Len returns the number of tracked addresses.
func (a *admission) Len() int {
	return a.entries.Count()
}

// Run prunes idle entries once per interval until ctx is cancelled.
func (a *admission) Run(ctx context.Context) error {
	if a.interval <= 0 {
		<-ctx.Done()
		return nil
	}
	period := max(a.interval, time.Second)
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			a.Prune(now)
		}
	}
}
