package handler

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateClass separates cheap reads from writes that contend for the chain.
type RateClass string

const (
	RateRead  RateClass = "read"
	RateWrite RateClass = "write"
)

// RateLimitConfig configures RateLimiter. A zero WriteRPS applies ReadRPS
// to writes as well.
type RateLimitConfig struct {
	ReadRPS  float64
	WriteRPS float64
	// Burst is the bucket size as a multiple of the rate, at least 1 token.
	Burst float64
	// IdleTTL is how long a client's buckets survive without requests.
	IdleTTL time.Duration
}

type clientBuckets struct {
	read, write *rate.Limiter
	lastSeen    time.Time
}

// RateLimiter keeps per-client token buckets, one for reads and one for
// writes. Every post, void and draft edit queues behind the single chain
// appender, so writes usually get a tighter budget than reports.
type RateLimiter struct {
	cfg RateLimitConfig
	now func() time.Time

	mu      sync.Mutex
	clients map[string]*clientBuckets
}

// NewRateLimiter creates a RateLimiter. Idle clients are swept every
// IdleTTL/2 until stop is closed.
func NewRateLimiter(cfg RateLimitConfig, stop <-chan struct{}) *RateLimiter {
	if cfg.WriteRPS <= 0 {
		cfg.WriteRPS = cfg.ReadRPS
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 2
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	rl := &RateLimiter{
		cfg:     cfg,
		now:     time.Now,
		clients: make(map[string]*clientBuckets),
	}
	if stop != nil {
		go rl.sweepLoop(stop)
	}
	return rl
}

func (rl *RateLimiter) sweepLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(rl.cfg.IdleTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.sweep()
		case <-stop:
			return
		}
	}
}

// sweep drops clients idle for longer than IdleTTL.
func (rl *RateLimiter) sweep() int {
	cutoff := rl.now().Add(-rl.cfg.IdleTTL)
	rl.mu.Lock()
	defer rl.mu.Unlock()
	n := 0
	for key, b := range rl.clients {
		if b.lastSeen.Before(cutoff) {
			delete(rl.clients, key)
			n++
		}
	}
	return n
}

func (rl *RateLimiter) bucket(client string, class RateClass) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	b, ok := rl.clients[client]
	if !ok {
		b = &clientBuckets{
			read:  newBucket(rl.cfg.ReadRPS, rl.cfg.Burst),
			write: newBucket(rl.cfg.WriteRPS, rl.cfg.Burst),
		}
		rl.clients[client] = b
	}
	b.lastSeen = rl.now()
	if class == RateWrite {
		return b.write
	}
	return b.read
}

func newBucket(rps, burst float64) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(rps), max(1, int(math.Ceil(rps*burst))))
}

// Allow takes one token for client in class. When none is available it
// returns how long until one will be.
func (rl *RateLimiter) Allow(client string, class RateClass) (bool, time.Duration) {
	l := rl.bucket(client, class)
	now := rl.now()
	r := l.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Second
	}
	wait := r.DelayFrom(now)
	if wait == 0 {
		return true, 0
	}
	r.CancelAt(now)
	return false, wait
}

// Middleware rejects over-budget requests with 429 and a Retry-After in
// whole seconds. Writes are the mutating methods.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		class := classify(c.Request.Method)
		ok, wait := rl.Allow(c.ClientIP(), class)
		if ok {
			c.Next()
			return
		}
		recordRateLimited(class)
		secs := int(math.Ceil(wait.Seconds()))
		if secs < 1 {
			secs = 1
		}
		c.Header("Retry-After", strconv.Itoa(secs))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": "rate limit exceeded",
			"class": class,
		})
	}
}

func classify(method string) RateClass {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return RateWrite
	default:
		return RateRead
	}
}
