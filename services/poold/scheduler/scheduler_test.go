package scheduler

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeRefresher struct {
	mu      sync.Mutex
	calls   int
	results []bool
	err     error
}

func (f *fakeRefresher) Refresh() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	if len(f.results) == 0 {
		return false, nil
	}
	next := f.results[0]
	f.results = f.results[1:]
	return next, nil
}

func (f *fakeRefresher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestNewValidatesArguments(t *testing.T) {
	if _, err := New(nil, time.Second, nil); err == nil {
		t.Fatalf("expected error for nil refresher")
	}
	if _, err := New(&fakeRefresher{}, 0, nil); err == nil {
		t.Fatalf("expected error for zero interval")
	}
}

func TestTickCountsPushes(t *testing.T) {
	refresher := &fakeRefresher{results: []bool{true, false, true}}
	s, err := New(refresher, time.Hour, nil)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	defer s.Shutdown()

	for i := 0; i < 3; i++ {
		s.Tick()
	}
	if s.Pushes() != 2 {
		t.Fatalf("expected 2 pushes, got %d", s.Pushes())
	}

	refresher.err = errors.New("boom")
	s.Tick()
	if s.Pushes() != 2 {
		t.Fatalf("failed refresh must not count as a push")
	}
}

func TestSchedulerRunsJob(t *testing.T) {
	refresher := &fakeRefresher{}
	s, err := New(refresher, 20*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	s.Start()
	defer s.Shutdown()

	deadline := time.Now().Add(2 * time.Second)
	for refresher.Calls() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("expected the job to run at least twice, ran %d times", refresher.Calls())
		}
		time.Sleep(10 * time.Millisecond)
	}
}
