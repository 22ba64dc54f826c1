package messaging

import (
	"context"
	"sync"

	"github.com/autocare360/autocare-backend/internal/models"
	"github.com/autocare360/autocare-backend/pkg/errors"
	"github.com/rs/zerolog"
)

// ThreadState is the load state of a view.
type ThreadState int

const (
	StateIdle ThreadState = iota
	StateLoading
	StateReady
	StateError
)

func (s ThreadState) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	default:
		return "idle"
	}
}

// ThreadView is an immutable snapshot of a Thread.
type ThreadView struct {
	State     ThreadState
	Err       error
	Messages  []models.Message
	Connected bool
}

type ThreadOptions struct {
	Tracker *ReadTracker
	Signals *Signals
	Logger  zerolog.Logger
}

// Thread reconciles a fetched history with live pushes for one scope.
type Thread struct {
	scope   Scope
	session Session
	store   MessageStore
	push    *PushChannel
	tracker *ReadTracker
	signals *Signals
	log     zerolog.Logger

	mu       sync.Mutex
	state    ThreadState
	err      error
	messages []models.Message
	mounted  bool
	opened   bool
	gen      int
	ctx      context.Context
	cancel   context.CancelFunc
	sub      *Subscription
	unhook   []func()

	lmu       sync.Mutex
	nextID    int
	listeners map[int]func(ThreadView)
}

func NewThread(scope Scope, session Session, store MessageStore, push *PushChannel, opts ThreadOptions) *Thread {
	return &Thread{
		scope:     scope,
		session:   session,
		store:     store,
		push:      push,
		tracker:   opts.Tracker,
		signals:   opts.Signals,
		log:       opts.Logger.With().Str("component", "thread").Uint("user_id", session.UserID).Logger(),
		ctx:       context.Background(),
		listeners: make(map[int]func(ThreadView)),
	}
}

func (t *Thread) Scope() Scope {
	return t.scope
}

// Mount subscribes to pushes and then loads history. A fetch failure leaves
// the thread in StateError; it stays mounted so Retry can recover.
func (t *Thread) Mount(ctx context.Context) error {
	t.mu.Lock()
	if t.mounted {
		t.mu.Unlock()
		return nil
	}
	t.mounted = true
	t.opened = false
	t.ctx, t.cancel = context.WithCancel(ctx)
	t.state = StateLoading
	t.err = nil
	t.mu.Unlock()

	var sub *Subscription
	var unhook []func()
	if t.push != nil {
		var err error
		if sub, err = t.push.Subscribe(t.session.UserID, t.handlePush); err != nil {
			t.log.Warn().Err(err).Msg("live updates unavailable")
		}
		unhook = append(unhook, t.push.OnStatus(func(bool) { t.changed() }))
	}
	if t.signals != nil {
		unhook = append(unhook, t.signals.Subscribe(t.handleSignal))
	}

	t.mu.Lock()
	if !t.mounted {
		t.mu.Unlock()
		if sub != nil {
			sub.Unsubscribe()
		}
		for _, fn := range unhook {
			fn()
		}
		return nil
	}
	t.sub = sub
	t.unhook = unhook
	fetchCtx := t.ctx
	t.mu.Unlock()

	return t.load(fetchCtx)
}

// Retry re-issues the history fetch without touching the subscription.
func (t *Thread) Retry(ctx context.Context) error {
	t.mu.Lock()
	if !t.mounted {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()
	return t.load(ctx)
}

func (t *Thread) load(ctx context.Context) error {
	t.mu.Lock()
	if !t.mounted {
		t.mu.Unlock()
		return nil
	}
	t.gen++
	gen := t.gen
	t.state = StateLoading
	t.mu.Unlock()
	t.changed()

	fetched, err := t.scope.Fetch(ctx, t.store)

	t.mu.Lock()
	if !t.mounted || gen != t.gen {
		t.mu.Unlock()
		return nil
	}
	if err != nil {
		t.state = StateError
		t.err = errors.E(errors.FetchError, "thread.fetch", err)
		err = t.err
		t.mu.Unlock()
		t.log.Warn().Err(err).Msg("history fetch failed")
		t.changed()
		return err
	}

	baseline := make([]models.Message, 0, len(fetched))
	for i := range fetched {
		if t.scope.Relevant(&fetched[i]) {
			baseline = append(baseline, fetched[i])
		}
	}
	t.messages = Merge(baseline, t.messages...)
	t.state = StateReady
	t.err = nil
	openNow := !t.opened
	t.opened = true
	t.mu.Unlock()
	t.changed()

	if openNow && t.tracker != nil {
		t.tracker.OnThreadOpened(ctx, t.scope.ReadCounterpart())
	}
	return nil
}

// Unmount stops every background activity of the thread. Results that arrive
// afterwards are discarded.
func (t *Thread) Unmount() {
	t.mu.Lock()
	if !t.mounted {
		t.mu.Unlock()
		return
	}
	t.mounted = false
	t.gen++
	sub, unhook, cancel, opened := t.sub, t.unhook, t.cancel, t.opened
	t.sub, t.unhook, t.cancel = nil, nil, nil
	t.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
	for _, fn := range unhook {
		fn()
	}
	if cancel != nil {
		cancel()
	}
	if opened && t.tracker != nil {
		t.tracker.OnThreadClosed()
	}
}

// Apply merges messages that belong to the thread and returns how many were
// new. It is a no-op once the thread is unmounted.
func (t *Thread) Apply(msgs ...models.Message) int {
	t.mu.Lock()
	if !t.mounted {
		t.mu.Unlock()
		return 0
	}
	relevant := make([]models.Message, 0, len(msgs))
	for i := range msgs {
		if t.scope.Relevant(&msgs[i]) {
			relevant = append(relevant, msgs[i])
		}
	}
	if len(relevant) == 0 {
		t.mu.Unlock()
		return 0
	}
	before := len(t.messages)
	t.messages = Merge(t.messages, relevant...)
	added := len(t.messages) - before
	t.mu.Unlock()

	t.changed()
	return added
}

// MarkReadLocal flips matching messages to read and returns how many changed.
func (t *Thread) MarkReadLocal(match func(*models.Message) bool) int {
	t.mu.Lock()
	n := 0
	next := make([]models.Message, len(t.messages))
	copy(next, t.messages)
	for i := range next {
		if !next[i].IsRead && match(&next[i]) {
			next[i].IsRead = true
			n++
		}
	}
	if n > 0 {
		t.messages = next
	}
	t.mu.Unlock()

	if n > 0 {
		t.changed()
	}
	return n
}

// Snapshot returns the current view.
func (t *Thread) Snapshot() ThreadView {
	t.mu.Lock()
	v := ThreadView{
		State:    t.state,
		Err:      t.err,
		Messages: t.messages,
	}
	t.mu.Unlock()
	if t.push != nil {
		v.Connected = t.push.Connected()
	}
	return v
}

// OnChange registers fn to receive a snapshot after every change.
func (t *Thread) OnChange(fn func(ThreadView)) (cancel func()) {
	t.lmu.Lock()
	id := t.nextID
	t.nextID++
	t.listeners[id] = fn
	t.lmu.Unlock()
	return func() {
		t.lmu.Lock()
		delete(t.listeners, id)
		t.lmu.Unlock()
	}
}

func (t *Thread) changed() {
	t.lmu.Lock()
	if len(t.listeners) == 0 {
		t.lmu.Unlock()
		return
	}
	fns := make([]func(ThreadView), 0, len(t.listeners))
	for _, fn := range t.listeners {
		fns = append(fns, fn)
	}
	t.lmu.Unlock()

	v := t.Snapshot()
	for _, fn := range fns {
		fn(v)
	}
}

func (t *Thread) handlePush(ev models.Event) {
	switch ev.Type {
	case models.EventMessageCreated:
		if ev.Message == nil {
			return
		}
		if t.Apply(*ev.Message) == 0 {
			return
		}
		if t.tracker != nil {
			t.mu.Lock()
			ctx := t.ctx
			t.mu.Unlock()
			t.tracker.OnPushArrived(ctx, ev.Message)
		}
	case models.EventMessagesRead:
		t.MarkReadLocal(readBy(ev.ReaderID, ev.ReaderRole, ev.CounterpartID))
	}
}

// handleSignal reflects a successful mark-read of this thread locally.
func (t *Thread) handleSignal(sig RefreshSignal) {
	if sig.Err != nil || sig.CounterpartID != t.scope.ReadCounterpart() {
		return
	}
	t.mu.Lock()
	mounted := t.mounted
	t.mu.Unlock()
	if !mounted {
		return
	}
	t.MarkReadLocal(readBy(t.session.UserID, t.session.Role, sig.CounterpartID))
}

// readBy matches the messages a mark-read by reader for counterpartID covers.
func readBy(readerID uint, readerRole models.Role, counterpartID uint) func(*models.Message) bool {
	return func(m *models.Message) bool {
		if counterpartID == models.PoolCounterpart {
			return m.ReceivedBy(readerID) && m.SenderRole.IsStaff()
		}
		if m.SenderID != counterpartID {
			return false
		}
		if m.ReceivedBy(readerID) {
			return true
		}
		return readerRole.IsStaff() && m.SenderRole == models.RoleCustomer
	}
}
