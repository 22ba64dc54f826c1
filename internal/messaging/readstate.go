package messaging

import (
	"context"
	"sync"

	"github.com/autocare360/autocare-backend/internal/models"
	"github.com/autocare360/autocare-backend/pkg/errors"
	"github.com/rs/zerolog"
)

// ReadTracker decides when the open thread's inbound messages are marked read
// on the server. Within one open event each sender is processed at most once:
// opening a thread processes its counterpart, and a push from a sender that
// was already processed issues no further call.
type ReadTracker struct {
	session Session
	store   MessageStore
	signals *Signals
	log     zerolog.Logger

	mu        sync.Mutex
	open      bool
	openCP    uint
	epoch     int
	processed map[uint]struct{}

	wg sync.WaitGroup
}

func NewReadTracker(session Session, store MessageStore, signals *Signals, log zerolog.Logger) *ReadTracker {
	return &ReadTracker{
		session:   session,
		store:     store,
		signals:   signals,
		log:       log.With().Str("component", "read_tracker").Uint("user_id", session.UserID).Logger(),
		processed: make(map[uint]struct{}),
	}
}

// OnThreadOpened starts a new open event for counterpartID and marks it read.
// It returns once the call has finished.
func (t *ReadTracker) OnThreadOpened(ctx context.Context, counterpartID uint) {
	t.mu.Lock()
	t.open = true
	t.openCP = counterpartID
	t.epoch++
	epoch := t.epoch
	t.processed = map[uint]struct{}{counterpartID: {}}
	t.mu.Unlock()

	t.mark(ctx, epoch, counterpartID, counterpartID)
}

// OnThreadClosed ends the open event; later pushes no longer mark anything.
func (t *ReadTracker) OnThreadClosed() {
	t.mu.Lock()
	t.open = false
	t.openCP = 0
	t.epoch++
	t.processed = make(map[uint]struct{})
	t.mu.Unlock()
}

// OpenCounterpart returns the counterpart of the open thread.
func (t *ReadTracker) OpenCounterpart() (uint, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.openCP, t.open
}

// OnPushArrived marks the open thread read in the background when m is an
// unread inbound message belonging to it from a sender not yet processed in
// this open event.
func (t *ReadTracker) OnPushArrived(ctx context.Context, m *models.Message) {
	if m == nil || m.IsRead {
		return
	}

	t.mu.Lock()
	if !t.open || !t.session.Inbound(m) || !t.matchesOpen(m) {
		t.mu.Unlock()
		return
	}
	if _, ok := t.processed[m.SenderID]; ok {
		t.mu.Unlock()
		return
	}
	t.processed[m.SenderID] = struct{}{}
	cp, epoch := t.openCP, t.epoch
	t.mu.Unlock()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.mark(ctx, epoch, cp, m.SenderID)
	}()
}

// Wait blocks until background mark-read calls have finished.
func (t *ReadTracker) Wait() {
	t.wg.Wait()
}

// matchesOpen must be called with t.mu held.
func (t *ReadTracker) matchesOpen(m *models.Message) bool {
	if m.SenderID == t.openCP {
		return true
	}
	return t.openCP == models.PoolCounterpart && !t.session.IsStaff() && m.SenderRole.IsStaff()
}

// mark issues one mark-read call for cp on behalf of sender. A failed call
// releases sender so a later push in the same open event can try again.
func (t *ReadTracker) mark(ctx context.Context, epoch int, cp, sender uint) {
	n, err := t.store.MarkRead(ctx, cp)
	if err != nil {
		err = errors.E(errors.ReadStateError, "messages.mark_read", err)
		t.log.Warn().Err(err).Uint("counterpart_id", cp).Msg("mark read failed")

		t.mu.Lock()
		if t.epoch == epoch {
			delete(t.processed, sender)
		}
		t.mu.Unlock()
	} else {
		t.log.Debug().Uint("counterpart_id", cp).Int64("marked", n).Msg("marked read")
	}
	if t.signals != nil {
		t.signals.Emit(RefreshSignal{CounterpartID: cp, Marked: n, Err: err})
	}
}
