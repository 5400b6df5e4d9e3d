package lock

import (
	"context"
	"testing"
	"time"

	"gitlab.com/mediauz/video-pipeline/pkg/logger"
)

func TestReleaserReleasesExactlyOnce(t *testing.T) {
	m := NewManager(logger.NewTest())

	releaser, err := m.Acquire(context.Background(), "uuid-1")
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	// success path and failure path both call Release; the second must be
	// a no-op instead of a double unlock
	releaser.Release()
	releaser.Release()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	second, err := m.Acquire(ctx, "uuid-1")
	if err != nil {
		t.Fatalf("lock was not freed by the first release: %v", err)
	}
	second.Release()
}

func TestAcquireBlocksUntilReleased(t *testing.T) {
	m := NewManager(logger.NewTest())

	first, err := m.Acquire(context.Background(), "uuid-1")
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		second, err := m.Acquire(context.Background(), "uuid-1")
		if err == nil {
			second.Release()
		}
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire succeeded while the lock was held")
	case <-time.After(50 * time.Millisecond):
	}

	first.Release()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second acquire never completed after release")
	}
}

func TestAcquireDifferentVideosDoNotContend(t *testing.T) {
	m := NewManager(logger.NewTest())

	a, err := m.Acquire(context.Background(), "uuid-a")
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	defer a.Release()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	b, err := m.Acquire(ctx, "uuid-b")
	if err != nil {
		t.Fatalf("unrelated video must not block: %v", err)
	}
	b.Release()
}

func TestAcquireHonorsContextCancellation(t *testing.T) {
	m := NewManager(logger.NewTest())

	holder, err := m.Acquire(context.Background(), "uuid-1")
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	defer holder.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := m.Acquire(ctx, "uuid-1"); err == nil {
		t.Fatal("expected a context error while the lock is held")
	}
}
