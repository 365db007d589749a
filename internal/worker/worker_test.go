package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type stubReconciler struct {
	mu         sync.Mutex
	staleCalls int
	orphan     []time.Duration
	staleErr   error
}

func (s *stubReconciler) ReconcileStale(_ context.Context, staleAfter, maxAge time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staleCalls++
	return 1, s.staleErr
}

func (s *stubReconciler) RecoverOrphanPayments(_ context.Context, olderThan time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orphan = append(s.orphan, olderThan)
	return 0, nil
}

func (s *stubReconciler) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.staleCalls, len(s.orphan)
}

type stubResender struct {
	mu     sync.Mutex
	limits []int
}

func (s *stubResender) RetryUnsentEmails(_ context.Context, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limits = append(s.limits, limit)
	return 0, nil
}

func TestReconciliationWorker_RunsBothPasses(t *testing.T) {
	r := &stubReconciler{}
	w := NewReconciliationWorker(r, time.Hour, 10*time.Minute, 72*time.Hour)

	w.run(context.Background())

	stale, orphan := r.counts()
	assert.Equal(t, 1, stale)
	assert.Equal(t, 1, orphan)
	assert.Equal(t, 10*time.Minute, r.orphan[0])
}

func TestReconciliationWorker_StaleErrorStillRecovers(t *testing.T) {
	r := &stubReconciler{staleErr: errors.New("db down")}
	w := NewReconciliationWorker(r, time.Hour, time.Minute, time.Hour)

	w.run(context.Background())

	_, orphan := r.counts()
	assert.Equal(t, 1, orphan)
}

func TestReconciliationWorker_StopsOnCancel(t *testing.T) {
	r := &stubReconciler{}
	w := NewReconciliationWorker(r, 5*time.Millisecond, time.Minute, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		stale, _ := r.counts()
		return stale > 0
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestEmailRetryWorker_UsesBatchLimit(t *testing.T) {
	r := &stubResender{}
	NewEmailRetryWorker(r, time.Hour).run(context.Background())

	assert.Equal(t, []int{emailRetryBatch}, r.limits)
}
