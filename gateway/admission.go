package gateway

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// admission throttles intents per payer with a token bucket. Buckets are
// created on first contact and dropped again after a few idle minutes so the
// visitor map does not grow with the user population.
type admission struct {
	perSecond rate.Limit
	burst     int

	mu       sync.Mutex
	visitors map[string]*rate.Limiter
}

func newAdmission(requestsPerMinute float64, burst int) *admission {
	perSecond := requestsPerMinute / 60.0
	if perSecond <= 0 {
		perSecond = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &admission{
		perSecond: rate.Limit(perSecond),
		burst:     burst,
		visitors:  make(map[string]*rate.Limiter),
	}
}

func (a *admission) allow(id string) bool {
	return a.obtainLimiter(id).Allow()
}

func (a *admission) obtainLimiter(id string) *rate.Limiter {
	a.mu.Lock()
	defer a.mu.Unlock()
	limiter, ok := a.visitors[id]
	if ok {
		return limiter
	}
	limiter = rate.NewLimiter(a.perSecond, a.burst)
	a.visitors[id] = limiter
	go a.cleanup(id)
	return limiter
}

func (a *admission) cleanup(id string) {
	timer := time.NewTimer(5 * time.Minute)
	defer timer.Stop()
	<-timer.C
	a.mu.Lock()
	delete(a.visitors, id)
	a.mu.Unlock()
}
