package messaging

import "sync"

// RefreshSignal tells unread indicators to re-sync from the server. It is
// raised after every mark-read attempt, successful or not.
type RefreshSignal struct {
	CounterpartID uint
	Marked        int64
	Err           error
}

// Signals fans RefreshSignals out to listeners such as the directory and
// navigation badges.
type Signals struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func(RefreshSignal)
}

func NewSignals() *Signals {
	return &Signals{subs: make(map[int]func(RefreshSignal))}
}

// Subscribe registers fn and returns a function that removes it.
func (s *Signals) Subscribe(fn func(RefreshSignal)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// Emit calls every listener on the caller's goroutine.
func (s *Signals) Emit(sig RefreshSignal) {
	s.mu.Lock()
	fns := make([]func(RefreshSignal), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(sig)
	}
}
