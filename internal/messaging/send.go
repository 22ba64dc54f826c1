package messaging

import (
	"context"
	"strings"
	"sync"

	"github.com/autocare360/autocare-backend/internal/models"
	"github.com/autocare360/autocare-backend/pkg/errors"
	"github.com/rs/zerolog"
)

// Sender writes messages through the store and reflects the stored copy in
// the open thread. The push echo of the same message is absorbed by Merge.
type Sender struct {
	session Session
	store   MessageStore
	log     zerolog.Logger
}

func NewSender(session Session, store MessageStore, log zerolog.Logger) *Sender {
	return &Sender{
		session: session,
		store:   store,
		log:     log.With().Str("component", "sender").Uint("user_id", session.UserID).Logger(),
	}
}

// Send validates body, stores it addressed to receiverID (nil for the pool)
// and applies the result to thread when one is given.
func (s *Sender) Send(ctx context.Context, body string, receiverID *uint, thread *Thread) (*models.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, errors.E(errors.SendError, "messages.send", errors.ErrEmptyBody)
	}
	if s.session.IsStaff() && receiverID == nil {
		return nil, errors.E(errors.SendError, "messages.send", errors.BadRequest("staff messages need a receiver"))
	}

	m, err := s.store.Create(ctx, receiverID, body)
	if err != nil {
		err = errors.E(errors.SendError, "messages.send", err)
		s.log.Warn().Err(err).Msg("send failed")
		return nil, err
	}
	if thread != nil {
		thread.Apply(*m)
	}
	return m, nil
}

// Composer is the input box of a thread. The draft survives failed sends.
type Composer struct {
	sender *Sender
	thread *Thread

	mu      sync.Mutex
	draft   string
	err     error
	sending bool
}

func NewComposer(sender *Sender, thread *Thread) *Composer {
	return &Composer{sender: sender, thread: thread}
}

func (c *Composer) SetDraft(s string) {
	c.mu.Lock()
	c.draft = s
	c.mu.Unlock()
}

func (c *Composer) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// Err is the error of the last submit, nil after a success.
func (c *Composer) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Submit sends the draft to the thread's reply target. The draft is cleared
// only when the store accepted the message and the user has not edited it
// since.
func (c *Composer) Submit(ctx context.Context) (*models.Message, error) {
	c.mu.Lock()
	if c.sending {
		c.mu.Unlock()
		return nil, errors.E(errors.SendError, "composer.submit", errors.BadRequest("a send is already in progress"))
	}
	c.sending = true
	body := c.draft
	c.mu.Unlock()

	var receiverID *uint
	if c.thread != nil {
		receiverID = c.thread.Scope().ReplyTo()
	}
	m, err := c.sender.Send(ctx, body, receiverID, c.thread)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sending = false
	c.err = err
	if err == nil && c.draft == body {
		c.draft = ""
	}
	return m, err
}
