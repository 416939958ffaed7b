package lock

import (
	"context"
	"sync"
	"time"

	"recap-board/internal/domain"
)

// MemoryLock реализует domain.KeyLock внутри процесса. Используется,
// когда REDIS_ADDR не задан, и в тестах; пригоден только для
// одноэкземплярного деплоя.
type MemoryLock struct {
	mu   sync.Mutex
	seq  uint64
	held map[string]memHold
}

// memHold жив до deadline; gen отличает захват от последующих
// перезахватов того же ключа после истечения TTL.
type memHold struct {
	gen      uint64
	deadline time.Time
}

// NewMemory создаёт лок в памяти.
func NewMemory() *MemoryLock {
	return &MemoryLock{held: make(map[string]memHold)}
}

var _ domain.KeyLock = (*MemoryLock)(nil)

// Acquire захватывает ключ. Занятый ключ — domain.ErrIngestBusy.
// Релиз снимает ключ только если он всё ещё принадлежит этому захвату:
// просроченный держатель не должен сбрасывать чужой живой лок.
func (l *MemoryLock) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	if hold, ok := l.held[key]; ok && now.Before(hold.deadline) {
		return nil, domain.ErrIngestBusy
	}
	l.seq++
	gen := l.seq
	l.held[key] = memHold{gen: gen, deadline: now.Add(ttl)}
	release := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if hold, ok := l.held[key]; ok && hold.gen == gen {
			delete(l.held, key)
		}
	}
	return release, nil
}
