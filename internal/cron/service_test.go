package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/kolabz/kolabz-backend/pkg/logger"
)

type stubLock struct {
	acquired bool
	acquires int
	releases int
	err      error
}

func (l *stubLock) Acquire(ctx context.Context) (bool, error) {
	l.acquires++
	return l.acquired, l.err
}

func (l *stubLock) Release(ctx context.Context) error {
	l.releases++
	return nil
}

type stubJob struct {
	name string
	runs int
	err  error
}

func (j *stubJob) Name() string { return j.name }

func (j *stubJob) Run(ctx context.Context) error {
	j.runs++
	return j.err
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{Output: io.Discard})
}

func TestRegistryFiltersNilJobs(t *testing.T) {
	registry := NewRegistry(nil, &stubJob{name: "a"}, nil, &stubJob{name: "b"})
	jobs := registry.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0].Name() != "a" || jobs[1].Name() != "b" {
		t.Fatalf("unexpected order %s, %s", jobs[0].Name(), jobs[1].Name())
	}
}

func TestRunCycleExecutesJobsUnderLock(t *testing.T) {
	lock := &stubLock{acquired: true}
	job := &stubJob{name: "refresh"}
	svc, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(job),
		Lock:     lock,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	if err := svc.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if job.runs != 1 {
		t.Fatalf("expected job run once, got %d", job.runs)
	}
	if lock.releases != 1 {
		t.Fatalf("expected lock released, got %d releases", lock.releases)
	}
}

func TestRunCycleSkipsWhenLockHeld(t *testing.T) {
	lock := &stubLock{acquired: false}
	job := &stubJob{name: "refresh"}
	svc, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(job),
		Lock:     lock,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	if err := svc.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("job must not run without the lock, got %d runs", job.runs)
	}
	if lock.releases != 0 {
		t.Fatalf("lock must not be released when never held, got %d", lock.releases)
	}
}

func TestRunCycleContinuesPastFailingJob(t *testing.T) {
	lock := &stubLock{acquired: true}
	failing := &stubJob{name: "broken", err: errors.New("boom")}
	healthy := &stubJob{name: "healthy"}
	svc, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(failing, healthy),
		Lock:     lock,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	if err := svc.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if healthy.runs != 1 {
		t.Fatalf("healthy job should still run, got %d", healthy.runs)
	}
}

type fakeLockStore struct {
	data map[string]string
}

func (s *fakeLockStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if s.data == nil {
		s.data = map[string]string{}
	}
	if _, ok := s.data[key]; ok {
		return false, nil
	}
	s.data[key] = value.(string)
	return true, nil
}

func (s *fakeLockStore) Get(_ context.Context, key string) (string, error) {
	return s.data[key], nil
}

func (s *fakeLockStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}

func TestRedisLockMutualExclusion(t *testing.T) {
	store := &fakeLockStore{}
	first, err := NewRedisLock(store, "kolabz:lock:cron", time.Minute)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	second, err := NewRedisLock(store, "kolabz:lock:cron", time.Minute)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}

	ok, err := first.Acquire(context.Background())
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	ok, err = second.Acquire(context.Background())
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if ok {
		t.Fatal("second instance must not win the lock")
	}

	if err := first.Release(context.Background()); err != nil {
		t.Fatalf("release: %v", err)
	}
	ok, err = second.Acquire(context.Background())
	if err != nil || !ok {
		t.Fatalf("acquire after release: ok=%v err=%v", ok, err)
	}
}

func TestRedisLockReleaseOnlyOwnLock(t *testing.T) {
	store := &fakeLockStore{}
	lock, err := NewRedisLock(store, "kolabz:lock:cron", time.Minute)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	if ok, _ := lock.Acquire(context.Background()); !ok {
		t.Fatal("acquire failed")
	}

	// the key expired and someone else took the lock
	store.data["kolabz:lock:cron"] = "other-owner"
	if err := lock.Release(context.Background()); err != nil {
		t.Fatalf("release: %v", err)
	}
	if store.data["kolabz:lock:cron"] != "other-owner" {
		t.Fatal("release must not delete a lock owned by another instance")
	}
}
