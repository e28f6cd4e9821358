package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore: скользящее окно в памяти процесса.
// Лимит действует отдельно в каждой реплике.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*slidingWindow
	now     func() time.Time
}

// slidingWindow хранит моменты запросов внутри окна.
type slidingWindow struct {
	timestamps []time.Time
	window     time.Duration
}

// NewMemoryStore создаёт хранилище в памяти.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[string]*slidingWindow), now: time.Now}
}

// Allow учитывает запрос, если в окне есть место.
func (s *MemoryStore) Allow(_ context.Context, key string, limit int, window time.Duration) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w := s.windows[key]
	if w == nil {
		w = &slidingWindow{window: window}
		s.windows[key] = w
	}
	w.cleanup(now)

	if len(w.timestamps) >= limit {
		return &Result{
			Allowed:   false,
			Limit:     limit,
			Remaining: 0,
			ResetAt:   w.timestamps[0].Add(window),
		}, nil
	}

	w.timestamps = append(w.timestamps, now)
	return &Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - len(w.timestamps),
		ResetAt:   w.timestamps[0].Add(window),
	}, nil
}

// Sweep удаляет пустые окна. Вызывается периодически, чтобы карта не росла.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, w := range s.windows {
		w.cleanup(now)
		if len(w.timestamps) == 0 {
			delete(s.windows, key)
			removed++
		}
	}
	return removed
}

// RunSweeper вызывает Sweep с интервалом interval до отмены ctx.
func (s *MemoryStore) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// cleanup удаляет моменты, вышедшие за окно.
func (w *slidingWindow) cleanup(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for ; i < len(w.timestamps); i++ {
		if w.timestamps[i].After(cutoff) {
			break
		}
	}
	switch {
	case i == 0:
	case i == len(w.timestamps):
		w.timestamps = nil
	default:
		// Копия отпускает старый массив; срез [i:] держал бы его целиком.
		w.timestamps = append(make([]time.Time, 0, len(w.timestamps)-i), w.timestamps[i:]...)
	}
}
