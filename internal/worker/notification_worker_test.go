package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/repairdesk/repairdesk/internal/service"
	"github.com/repairdesk/repairdesk/internal/storage"
)

type countingRetrier struct {
	calls atomic.Int32
	err   error
}

func (r *countingRetrier) RetryFailedNotifications(context.Context) (service.RetryResult, error) {
	r.calls.Add(1)
	return service.RetryResult{}, r.err
}

type countingStore struct {
	cleanups atomic.Int32
	age      atomic.Int64
}

func (s *countingStore) Put(context.Context, string, []byte, string) (storage.Object, error) {
	return storage.Object{}, nil
}

func (s *countingStore) Delete(context.Context, string) error { return nil }

func (s *countingStore) SignedURL(context.Context, string, time.Duration) (string, error) {
	return "", nil
}

func (s *countingStore) Cleanup(_ context.Context, olderThan time.Duration) (int, error) {
	s.cleanups.Add(1)
	s.age.Store(int64(olderThan))
	return 1, nil
}

func TestWorkerRunsUntilCancelled(t *testing.T) {
	retrier := &countingRetrier{err: errors.New("db down")}
	store := &countingStore{}
	w := NewNotificationWorker(retrier, store, Config{
		RetryInterval:   5 * time.Millisecond,
		CleanupInterval: 5 * time.Millisecond,
		CleanupAge:      48 * time.Hour,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for retrier.calls.Load() < 2 || store.cleanups.Load() < 1 {
		if time.Now().After(deadline) {
			t.Fatalf("loops did not run: retries=%d cleanups=%d", retrier.calls.Load(), store.cleanups.Load())
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	w.Wait()

	if got := time.Duration(store.age.Load()); got != 48*time.Hour {
		t.Errorf("cleanup age = %v, want 48h", got)
	}
	after := retrier.calls.Load()
	time.Sleep(20 * time.Millisecond)
	if retrier.calls.Load() != after {
		t.Error("retry loop kept running after cancel")
	}
}

func TestWorkerSkipsDisabledLoops(t *testing.T) {
	retrier := &countingRetrier{}
	w := NewNotificationWorker(retrier, nil, Config{}, nil)
	w.Start(context.Background())
	w.Wait()
	if retrier.calls.Load() != 0 {
		t.Error("zero interval should disable the retry loop")
	}
}
