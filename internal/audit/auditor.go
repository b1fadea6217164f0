// Package audit re-verifies the hash chain on a fixed interval.
package audit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jmerrifield20/chainledger/internal/model"
)

// Config holds auditor configuration.
type Config struct {
	Interval time.Duration
	Timeout  time.Duration
}

// ChainVerifier runs a full verification. *ledger.Service satisfies this.
type ChainVerifier interface {
	VerifyChain(ctx context.Context) (model.VerificationResult, error)
}

// MetricsRecordFunc is an optional callback for recording audit outcomes.
type MetricsRecordFunc func(ok bool, entries int64)

// Auditor runs periodic chain verification and keeps the latest result.
type Auditor struct {
	verifier  ChainVerifier
	cfg       Config
	onMetrics MetricsRecordFunc
	logger    *zap.Logger

	mu       sync.RWMutex
	latest   *model.VerificationResult
	failures int
}

// New creates a new Auditor.
func New(verifier ChainVerifier, cfg Config, logger *zap.Logger) *Auditor {
	if cfg.Interval == 0 {
		cfg.Interval = 10 * time.Minute
	}
	if cfg.Timeout == 0 || cfg.Timeout > cfg.Interval {
		cfg.Timeout = cfg.Interval
	}
	return &Auditor{verifier: verifier, cfg: cfg, logger: logger}
}

// SetMetricsRecord configures the metrics recording callback.
func (a *Auditor) SetMetricsRecord(fn MetricsRecordFunc) {
	a.onMetrics = fn
}

// Start audits once immediately and then on every tick until stop is closed.
func (a *Auditor) Start(stop <-chan struct{}) {
	a.runOnce()

	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.runOnce()
		case <-stop:
			return
		}
	}
}

func (a *Auditor) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Timeout)
	defer cancel()
	a.Check(ctx)
}

// Check verifies the chain once and records the result. Verification
// errors such as a timeout leave the previous result in place.
func (a *Auditor) Check(ctx context.Context) (model.VerificationResult, bool) {
	res, err := a.verifier.VerifyChain(ctx)
	if err != nil {
		a.logger.Warn("audit: verification did not complete", zap.Error(err))
		return res, false
	}

	a.mu.Lock()
	prevFailures := a.failures
	if res.IsValid {
		a.failures = 0
	} else {
		a.failures++
	}
	a.latest = &res
	a.mu.Unlock()

	if a.onMetrics != nil {
		a.onMetrics(res.IsValid, res.VerifiedEntries)
	}

	switch {
	case !res.IsValid && prevFailures == 0:
		a.logger.Error("audit: ledger integrity lost",
			zap.Int64("broken_at_sequence", *res.BrokenAtSequence),
			zap.String("reason", res.Reason),
		)
	case res.IsValid && prevFailures > 0:
		a.logger.Info("audit: ledger verifies again", zap.Int("failed_runs", prevFailures))
	}
	return res, true
}

// Latest returns the most recent completed result, if any.
func (a *Auditor) Latest() (model.VerificationResult, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.latest == nil {
		return model.VerificationResult{}, false
	}
	return *a.latest, true
}
