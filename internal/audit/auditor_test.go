package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/jmerrifield20/chainledger/internal/model"
)

// ── Stubs ────────────────────────────────────────────────────────────────

type stubVerifier struct {
	results []model.VerificationResult
	err     error
	calls   int
}

func (s *stubVerifier) VerifyChain(_ context.Context) (model.VerificationResult, error) {
	if s.err != nil {
		return model.VerificationResult{}, s.err
	}
	r := s.results[s.calls%len(s.results)]
	s.calls++
	return r, nil
}

func broken(seq int64) model.VerificationResult {
	return model.VerificationResult{BrokenAtSequence: &seq, VerifiedEntries: seq - 1, Reason: "content hash mismatch"}
}

// ── Tests ────────────────────────────────────────────────────────────────

func TestCheck_recordsLatest(t *testing.T) {
	v := &stubVerifier{results: []model.VerificationResult{{IsValid: true, VerifiedEntries: 3}}}
	a := New(v, Config{Interval: time.Minute}, zap.NewNop())

	if _, ok := a.Latest(); ok {
		t.Fatal("expected no result before the first check")
	}

	var gotOK bool
	var gotEntries int64
	a.SetMetricsRecord(func(ok bool, entries int64) { gotOK, gotEntries = ok, entries })

	if _, ok := a.Check(context.Background()); !ok {
		t.Fatal("check did not complete")
	}
	latest, ok := a.Latest()
	if !ok || !latest.IsValid || latest.VerifiedEntries != 3 {
		t.Errorf("latest = %+v", latest)
	}
	if !gotOK || gotEntries != 3 {
		t.Errorf("metrics = %v/%d", gotOK, gotEntries)
	}
}

func TestCheck_countsFailures(t *testing.T) {
	v := &stubVerifier{results: []model.VerificationResult{broken(2), broken(2), {IsValid: true}}}
	a := New(v, Config{Interval: time.Minute}, zap.NewNop())

	for i := 0; i < 2; i++ {
		a.Check(context.Background())
	}
	if a.failures != 2 {
		t.Errorf("failures = %d, want 2", a.failures)
	}
	latest, _ := a.Latest()
	if latest.IsValid || *latest.BrokenAtSequence != 2 {
		t.Errorf("latest = %+v", latest)
	}

	a.Check(context.Background())
	if a.failures != 0 {
		t.Errorf("failures = %d after a valid run", a.failures)
	}
}

func TestCheck_errorKeepsPrevious(t *testing.T) {
	v := &stubVerifier{results: []model.VerificationResult{{IsValid: true}}}
	a := New(v, Config{Interval: time.Minute}, zap.NewNop())
	a.Check(context.Background())

	v.err = errors.New("snapshot chain: timeout")
	if _, ok := a.Check(context.Background()); ok {
		t.Error("failed verification reported as complete")
	}
	if latest, ok := a.Latest(); !ok || !latest.IsValid {
		t.Errorf("latest = %+v, %v", latest, ok)
	}
}

func TestStart_stops(t *testing.T) {
	v := &stubVerifier{results: []model.VerificationResult{{IsValid: true}}}
	a := New(v, Config{Interval: time.Hour}, zap.NewNop())

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		a.Start(stop)
		close(done)
	}()
	close(stop)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("auditor did not stop")
	}
	if _, ok := a.Latest(); !ok {
		t.Error("expected an initial audit on start")
	}
}
