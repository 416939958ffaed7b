package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"recap-board/internal/domain"
)

func TestMemoryLockExclusive(t *testing.T) {
	l := NewMemory()
	release, err := l.Acquire(context.Background(), "ingest:1:2025-01-10", time.Minute)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	_, err = l.Acquire(context.Background(), "ingest:1:2025-01-10", time.Minute)
	if !errors.Is(err, domain.ErrIngestBusy) {
		t.Fatalf("ожидали ErrIngestBusy, получили %v", err)
	}

	// другой ключ свободен
	releaseOther, err := l.Acquire(context.Background(), "ingest:1:2025-01-11", time.Minute)
	if err != nil {
		t.Fatalf("другой ключ должен быть свободен: %v", err)
	}
	releaseOther()

	release()
	release2, err := l.Acquire(context.Background(), "ingest:1:2025-01-10", time.Minute)
	if err != nil {
		t.Fatalf("после release ключ должен быть свободен: %v", err)
	}
	release2()
}

func TestMemoryLockExpires(t *testing.T) {
	l := NewMemory()
	if _, err := l.Acquire(context.Background(), "k", time.Millisecond); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	release, err := l.Acquire(context.Background(), "k", time.Minute)
	if err != nil {
		t.Fatalf("TTL истёк, ключ должен быть свободен: %v", err)
	}
	release()
}

// Просроченный держатель не должен снимать живой лок перезахватившего.
func TestMemoryLockStaleReleaseKeepsNewHolder(t *testing.T) {
	l := NewMemory()
	staleRelease, err := l.Acquire(context.Background(), "k", time.Millisecond)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	liveRelease, err := l.Acquire(context.Background(), "k", time.Minute)
	if err != nil {
		t.Fatalf("после TTL перезахват должен пройти: %v", err)
	}

	staleRelease()
	if _, err := l.Acquire(context.Background(), "k", time.Minute); !errors.Is(err, domain.ErrIngestBusy) {
		t.Fatalf("живой лок не должен сниматься чужим релизом, получили %v", err)
	}
	liveRelease()
}
