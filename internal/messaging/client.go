package messaging

import (
	"context"
	"time"

	"github.com/autocare360/autocare-backend/internal/config"
	"github.com/rs/zerolog"
)

// ClientConfig holds the endpoints and timings of the client core.
type ClientConfig struct {
	APIBaseURL string
	PushURL    string

	RequestTimeout      time.Duration
	ReconnectInitial    time.Duration
	ReconnectMax        time.Duration
	DirectoryRefreshGap time.Duration
}

// ClientConfigFrom copies the client settings out of the process config.
func ClientConfigFrom(cfg *config.Config) ClientConfig {
	return ClientConfig{
		APIBaseURL:          cfg.APIBaseURL,
		PushURL:             cfg.PushURL,
		RequestTimeout:      cfg.RequestTimeout,
		ReconnectInitial:    cfg.ReconnectInitial,
		ReconnectMax:        cfg.ReconnectMax,
		DirectoryRefreshGap: cfg.DirectoryRefreshGap,
	}
}

// Client bundles the per-session components one UI instance needs.
type Client struct {
	Session Session
	Store   MessageStore
	Push    *PushChannel
	Signals *Signals
	Tracker *ReadTracker
	Sender  *Sender

	cfg ClientConfig
	log zerolog.Logger
}

func NewClient(cfg ClientConfig, session Session, log zerolog.Logger) *Client {
	store := NewStoreClient(cfg.APIBaseURL, session, cfg.RequestTimeout)
	push := NewPushChannel(PushConfig{
		URL:            cfg.PushURL,
		Token:          session.Token,
		UserID:         session.UserID,
		InitialBackoff: cfg.ReconnectInitial,
		MaxBackoff:     cfg.ReconnectMax,
	}, log)
	return newClient(cfg, session, store, push, log)
}

func newClient(cfg ClientConfig, session Session, store MessageStore, push *PushChannel, log zerolog.Logger) *Client {
	signals := NewSignals()
	return &Client{
		Session: session,
		Store:   store,
		Push:    push,
		Signals: signals,
		Tracker: NewReadTracker(session, store, signals, log),
		Sender:  NewSender(session, store, log),
		cfg:     cfg,
		log:     log,
	}
}

// OpenThread mounts a thread for scope. On a fetch error the mounted thread
// is still returned.
func (c *Client) OpenThread(ctx context.Context, scope Scope) (*Thread, error) {
	th := NewThread(scope, c.Session, c.Store, c.Push, ThreadOptions{
		Tracker: c.Tracker,
		Signals: c.Signals,
		Logger:  c.log,
	})
	return th, th.Mount(ctx)
}

// SupportThread opens a customer's own thread with the employee pool.
func (c *Client) SupportThread(ctx context.Context) (*Thread, error) {
	return c.OpenThread(ctx, CustomerScope(c.Session.UserID))
}

// Directory builds the staff conversation directory. It is not mounted.
func (c *Client) Directory() *Directory {
	return NewDirectory(c.Session, c.Store, c.Push, DirectoryOptions{
		Tracker:    c.Tracker,
		Signals:    c.Signals,
		Logger:     c.log,
		RefreshGap: c.cfg.DirectoryRefreshGap,
	})
}

func (c *Client) Composer(th *Thread) *Composer {
	return NewComposer(c.Sender, th)
}

// Close stops the push connection and waits for pending read-state calls.
func (c *Client) Close() {
	if c.Push != nil {
		c.Push.Close()
	}
	c.Tracker.Wait()
}
