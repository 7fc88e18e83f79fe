package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	ActionSendMessage        = "send_message"
	ActionTyping             = "typing"
	ActionCreateConversation = "create_conversation"
)

// Policy is a token bucket: Burst tokens, one token refilled every Every.
type Policy struct {
	Burst int
	Every time.Duration
}

var defaultPolicies = map[string]Policy{
	// 10 messages per minute
	ActionSendMessage: {Burst: 10, Every: 6 * time.Second},
	// 5 new conversations per hour
	ActionCreateConversation: {Burst: 5, Every: 12 * time.Minute},
	// 30 typing signals per minute
	ActionTyping: {Burst: 30, Every: 2 * time.Second},
}

var fallbackPolicy = Policy{Burst: 20, Every: 3 * time.Second}

type bucket struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// RateLimiter keeps one limiter per user and action.
type RateLimiter struct {
	buckets  map[string]*bucket
	policies map[string]Policy
	mutex    sync.Mutex
	now      func() time.Time
}

func NewRateLimiter() *RateLimiter {
	return NewRateLimiterWithPolicies(defaultPolicies)
}

func NewRateLimiterWithPolicies(policies map[string]Policy) *RateLimiter {
	return &RateLimiter{
		buckets:  make(map[string]*bucket),
		policies: policies,
		now:      time.Now,
	}
}

// Allow consumes a token for the action. When denied it also returns how long
// until the next token is available. A nil limiter allows everything.
func (rl *RateLimiter) Allow(userID, action string) (bool, time.Duration) {
	if rl == nil {
		return true, 0
	}
	key := userID + ":" + action
	now := rl.now()

	rl.mutex.Lock()
	b, exists := rl.buckets[key]
	if !exists {
		policy, ok := rl.policies[action]
		if !ok {
			policy = fallbackPolicy
		}
		b = &bucket{limiter: rate.NewLimiter(rate.Every(policy.Every), policy.Burst)}
		rl.buckets[key] = b
	}
	b.lastUsed = now
	rl.mutex.Unlock()

	reservation := b.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return false, 0
	}
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Tokens reports the tokens currently available for a user action.
func (rl *RateLimiter) Tokens(userID, action string) float64 {
	rl.mutex.Lock()
	b, exists := rl.buckets[userID+":"+action]
	rl.mutex.Unlock()
	if !exists {
		return 0
	}
	return b.limiter.TokensAt(rl.now())
}

// Cleanup removes buckets idle for longer than maxIdle.
func (rl *RateLimiter) Cleanup(maxIdle time.Duration) int {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.now()
	removed := 0
	for key, b := range rl.buckets {
		if now.Sub(b.lastUsed) > maxIdle {
			delete(rl.buckets, key)
			removed++
		}
	}
	return removed
}

// StartCleanupRoutine runs Cleanup every 30 minutes until stop is closed.
func (rl *RateLimiter) StartCleanupRoutine(stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				rl.Cleanup(time.Hour)
			case <-stop:
				return
			}
		}
	}()
}
