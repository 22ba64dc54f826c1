package messaging

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/autocare360/autocare-backend/internal/models"
	"github.com/autocare360/autocare-backend/pkg/errors"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// DirectoryView is an immutable snapshot of a Directory.
type DirectoryView struct {
	State         ThreadState
	Err           error
	Conversations []models.ConversationSummary
	Connected     bool
}

type DirectoryOptions struct {
	Tracker *ReadTracker
	Signals *Signals
	Logger  zerolog.Logger

	// RefreshGap is the minimum spacing between background refreshes.
	RefreshGap time.Duration
	Now        func() time.Time
}

// Directory is the staff inbox: one summary per customer, re-fetched whole
// whenever a push or a read-state change may have altered it.
type Directory struct {
	session Session
	store   MessageStore
	push    *PushChannel
	opts    DirectoryOptions
	log     zerolog.Logger

	mu       sync.Mutex
	state    ThreadState
	err      error
	list     []models.ConversationSummary
	mounted  bool
	seq      int
	ctx      context.Context
	cancel   context.CancelFunc
	sub      *Subscription
	unhook   []func()
	kick     chan struct{}
	done     chan struct{}
	selected *Thread

	lmu       sync.Mutex
	nextID    int
	listeners map[int]func(DirectoryView)
}

func NewDirectory(session Session, store MessageStore, push *PushChannel, opts DirectoryOptions) *Directory {
	if opts.RefreshGap <= 0 {
		opts.RefreshGap = 250 * time.Millisecond
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Directory{
		session:   session,
		store:     store,
		push:      push,
		opts:      opts,
		log:       opts.Logger.With().Str("component", "directory").Uint("user_id", session.UserID).Logger(),
		listeners: make(map[int]func(DirectoryView)),
	}
}

// Mount starts listening for changes and performs the initial load.
func (d *Directory) Mount(ctx context.Context) error {
	if !d.session.IsStaff() {
		return errors.E(errors.FetchError, "directory.mount", errors.Forbidden("only staff have a conversation directory"))
	}

	d.mu.Lock()
	if d.mounted {
		d.mu.Unlock()
		return nil
	}
	d.mounted = true
	d.ctx, d.cancel = context.WithCancel(ctx)
	d.kick = make(chan struct{}, 1)
	d.done = make(chan struct{})
	d.state = StateLoading
	wctx, kick, done := d.ctx, d.kick, d.done
	d.mu.Unlock()

	go d.worker(wctx, kick, done)

	var sub *Subscription
	var unhook []func()
	if d.push != nil {
		var err error
		if sub, err = d.push.Subscribe(d.session.UserID, func(models.Event) { d.schedule() }); err != nil {
			d.log.Warn().Err(err).Msg("live updates unavailable")
		}
		unhook = append(unhook, d.push.OnStatus(func(connected bool) {
			// Anything missed while offline is only visible after a refetch.
			if connected {
				d.schedule()
			}
			d.changed()
		}))
	}
	if d.opts.Signals != nil {
		unhook = append(unhook, d.opts.Signals.Subscribe(func(RefreshSignal) { d.schedule() }))
	}

	d.mu.Lock()
	if !d.mounted {
		d.mu.Unlock()
		if sub != nil {
			sub.Unsubscribe()
		}
		for _, fn := range unhook {
			fn()
		}
		return nil
	}
	d.sub = sub
	d.unhook = unhook
	d.mu.Unlock()

	return d.Refresh(wctx)
}

// Unmount stops the background worker and releases the selected thread.
func (d *Directory) Unmount() {
	d.mu.Lock()
	if !d.mounted {
		d.mu.Unlock()
		return
	}
	d.mounted = false
	d.seq++
	sub, unhook, cancel, done, selected := d.sub, d.unhook, d.cancel, d.done, d.selected
	d.sub, d.unhook, d.cancel, d.selected = nil, nil, nil, nil
	d.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
	for _, fn := range unhook {
		fn()
	}
	if selected != nil {
		selected.Unmount()
	}
	cancel()
	<-done
}

// Refresh replaces the list with a fresh fetch. Only the most recently
// started refresh may publish its result.
func (d *Directory) Refresh(ctx context.Context) error {
	d.mu.Lock()
	if !d.mounted {
		d.mu.Unlock()
		return nil
	}
	d.seq++
	seq := d.seq
	d.mu.Unlock()

	rows, err := d.store.ListConversations(ctx)

	d.mu.Lock()
	if !d.mounted || seq != d.seq {
		d.mu.Unlock()
		return nil
	}
	if err != nil {
		d.state = StateError
		d.err = errors.E(errors.FetchError, "directory.refresh", err)
		d.list = nil
		err = d.err
		d.mu.Unlock()
		d.log.Warn().Err(err).Msg("conversation list refresh failed")
		d.changed()
		return err
	}

	now := d.opts.Now()
	list := make([]models.ConversationSummary, len(rows))
	copy(list, rows)
	for i := range list {
		list[i].Time = humanize.RelTime(list[i].LastMessageAt, now, "ago", "from now")
	}
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].LastMessageAt.Equal(list[j].LastMessageAt) {
			return list[i].LastMessageAt.After(list[j].LastMessageAt)
		}
		return list[i].CustomerID < list[j].CustomerID
	})
	d.list = list
	d.state = StateReady
	d.err = nil
	d.mu.Unlock()

	d.changed()
	return nil
}

// List returns the current summaries, newest first.
func (d *Directory) List() []models.ConversationSummary {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.list
}

// UnreadTotal is the sum of unread counts across the list.
func (d *Directory) UnreadTotal() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	var total int64
	for _, c := range d.list {
		total += c.UnreadCount
	}
	return total
}

// Search filters the current list by display name, case-insensitively.
func (d *Directory) Search(q string) []models.ConversationSummary {
	q = strings.ToLower(strings.TrimSpace(q))
	list := d.List()
	if q == "" {
		return list
	}
	out := make([]models.ConversationSummary, 0, len(list))
	for _, c := range list {
		if strings.Contains(strings.ToLower(c.Name), q) {
			out = append(out, c)
		}
	}
	return out
}

// Select opens customerID's pool thread, closing any previous selection. The
// thread is returned even when its first fetch fails so the caller can Retry.
func (d *Directory) Select(ctx context.Context, customerID uint) (*Thread, error) {
	d.mu.Lock()
	if !d.mounted {
		d.mu.Unlock()
		return nil, errors.E(errors.FetchError, "directory.select", errors.BadRequest("directory is not mounted"))
	}
	prev := d.selected
	d.selected = nil
	d.mu.Unlock()

	if prev != nil {
		prev.Unmount()
	}

	th := NewThread(PoolCustomerScope(d.session.UserID, customerID), d.session, d.store, d.push, ThreadOptions{
		Tracker: d.opts.Tracker,
		Signals: d.opts.Signals,
		Logger:  d.opts.Logger,
	})
	err := th.Mount(ctx)

	d.mu.Lock()
	if !d.mounted {
		d.mu.Unlock()
		th.Unmount()
		return nil, err
	}
	d.selected = th
	d.mu.Unlock()
	return th, err
}

// Selected returns the open thread, if any.
func (d *Directory) Selected() *Thread {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.selected
}

func (d *Directory) Snapshot() DirectoryView {
	d.mu.Lock()
	v := DirectoryView{State: d.state, Err: d.err, Conversations: d.list}
	d.mu.Unlock()
	if d.push != nil {
		v.Connected = d.push.Connected()
	}
	return v
}

func (d *Directory) OnChange(fn func(DirectoryView)) (cancel func()) {
	d.lmu.Lock()
	id := d.nextID
	d.nextID++
	d.listeners[id] = fn
	d.lmu.Unlock()
	return func() {
		d.lmu.Lock()
		delete(d.listeners, id)
		d.lmu.Unlock()
	}
}

func (d *Directory) changed() {
	d.lmu.Lock()
	fns := make([]func(DirectoryView), 0, len(d.listeners))
	for _, fn := range d.listeners {
		fns = append(fns, fn)
	}
	d.lmu.Unlock()
	if len(fns) == 0 {
		return
	}
	v := d.Snapshot()
	for _, fn := range fns {
		fn(v)
	}
}

// schedule asks the worker for a refresh; requests made while one is pending
// collapse into it.
func (d *Directory) schedule() {
	d.mu.Lock()
	kick, mounted := d.kick, d.mounted
	d.mu.Unlock()
	if !mounted {
		return
	}
	select {
	case kick <- struct{}{}:
	default:
	}
}

func (d *Directory) worker(ctx context.Context, kick <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	limiter := rate.NewLimiter(rate.Every(d.opts.RefreshGap), 1)
	for {
		select {
		case <-ctx.Done():
			return
		case <-kick:
		}
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		_ = d.Refresh(ctx)
	}
}
