package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/autocare360/autocare-backend/internal/models"
	"github.com/autocare360/autocare-backend/pkg/errors"
	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	pushWriteWait = 10 * time.Second
	pushReadWait  = 90 * time.Second
)

// PushConfig configures a PushChannel.
type PushConfig struct {
	// URL of the websocket endpoint, e.g. ws://host/api/ws.
	URL   string
	Token string
	// UserID owns Token. When set, Subscribe refuses any other user's topic.
	UserID uint

	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer
}

// Handler receives push events in transport arrival order.
type Handler func(models.Event)

// PushChannel multiplexes topic subscriptions over one websocket and keeps it
// alive with exponential backoff. Events are not replayed across reconnects.
type PushChannel struct {
	cfg PushConfig
	log zerolog.Logger

	mu        sync.Mutex
	nextID    int
	subs      map[int]*Subscription
	topics    map[string]int
	acked     map[string]bool
	status    map[int]func(bool)
	conn      *websocket.Conn
	connected bool
	cancel    context.CancelFunc
	gen       int
	closed    bool

	writeMu sync.Mutex
}

// Subscription is one handler registration on a topic.
type Subscription struct {
	id      int
	topic   string
	handler Handler
	ch      *PushChannel
	once    sync.Once
}

func NewPushChannel(cfg PushConfig, log zerolog.Logger) *PushChannel {
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	return &PushChannel{
		cfg:    cfg,
		log:    log.With().Str("component", "push").Logger(),
		subs:   make(map[int]*Subscription),
		topics: make(map[string]int),
		acked:  make(map[string]bool),
		status: make(map[int]func(bool)),
	}
}

// Subscribe registers h for events on userID's topic, opening the connection
// if this is the first subscriber. The server only accepts the token owner's
// topic, so any other userID is rejected here.
func (p *PushChannel) Subscribe(userID uint, h Handler) (*Subscription, error) {
	if p.cfg.UserID != 0 && userID != p.cfg.UserID {
		return nil, errors.E(errors.TransportError, "push.subscribe", errors.Forbidden(
			fmt.Sprintf("topic of user %d does not belong to this session", userID)))
	}
	topic := models.UserTopic(userID)

	p.mu.Lock()
	sub := &Subscription{id: p.nextID, topic: topic, handler: h, ch: p}
	p.nextID++
	if p.closed {
		p.mu.Unlock()
		return sub, nil
	}
	p.subs[sub.id] = sub
	p.topics[topic]++
	first := p.topics[topic] == 1
	conn := p.conn
	if p.cancel == nil {
		ctx, cancel := context.WithCancel(context.Background())
		p.cancel = cancel
		p.gen++
		go p.run(ctx, p.gen)
	}
	p.mu.Unlock()

	if first && conn != nil {
		p.writeFrame(conn, models.ClientFrame{Action: models.ActionSubscribe, Topic: topic})
	}
	return sub, nil
}

// Unsubscribe removes only this registration. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() { s.ch.remove(s) })
}

func (p *PushChannel) remove(s *Subscription) {
	p.mu.Lock()
	if _, ok := p.subs[s.id]; !ok {
		p.mu.Unlock()
		return
	}
	delete(p.subs, s.id)
	p.topics[s.topic]--
	last := p.topics[s.topic] <= 0
	if last {
		delete(p.topics, s.topic)
		delete(p.acked, s.topic)
	}
	conn := p.conn

	var wasConnected bool
	if len(p.subs) == 0 && p.cancel != nil {
		p.cancel()
		p.cancel = nil
		p.gen++
		p.conn = nil
		wasConnected = p.connected
		p.connected = false
		conn = nil
	}
	p.mu.Unlock()

	if last && conn != nil {
		p.writeFrame(conn, models.ClientFrame{Action: models.ActionUnsubscribe, Topic: s.topic})
	}
	if wasConnected {
		p.notify(false)
	}
}

// Connected reports whether the websocket is currently open.
func (p *PushChannel) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Ready reports whether the server acknowledged the subscription for userID
// on the current connection.
func (p *PushChannel) Ready(userID uint) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected && p.acked[models.UserTopic(userID)]
}

// OnStatus registers fn for connect/disconnect transitions.
func (p *PushChannel) OnStatus(fn func(connected bool)) (cancel func()) {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.status[id] = fn
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.status, id)
		p.mu.Unlock()
	}
}

// Close drops every subscription and stops reconnecting.
func (p *PushChannel) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.gen++
	wasConnected := p.connected
	p.connected = false
	p.conn = nil
	p.subs = make(map[int]*Subscription)
	p.topics = make(map[string]int)
	p.acked = make(map[string]bool)
	p.mu.Unlock()

	if wasConnected {
		p.notify(false)
	}
}

func (p *PushChannel) run(ctx context.Context, gen int) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.cfg.InitialBackoff
	bo.MaxInterval = p.cfg.MaxBackoff
	bo.MaxElapsedTime = 0
	bo.Reset()

	for {
		connected, err := p.connectOnce(ctx, gen)
		if ctx.Err() != nil {
			return
		}
		if connected {
			bo.Reset()
		}
		wait := bo.NextBackOff()
		p.log.Warn().
			Err(errors.E(errors.TransportError, "push.connect", err)).
			Dur("retry_in", wait).
			Msg("push channel disconnected")

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// connectOnce dials, subscribes every registered topic and reads until the
// connection fails.
func (p *PushChannel) connectOnce(ctx context.Context, gen int) (bool, error) {
	u, err := url.Parse(p.cfg.URL)
	if err != nil {
		return false, err
	}
	q := u.Query()
	q.Set("token", p.cfg.Token)
	u.RawQuery = q.Encode()

	conn, _, err := p.cfg.Dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return false, err
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		_ = conn.Close()
	}()

	topics, ok := p.setConn(gen, conn)
	if !ok {
		return false, context.Canceled
	}
	p.notify(true)
	defer p.clearConn(conn)

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(pushReadWait))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pushReadWait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(pushWriteWait))
	})

	for _, topic := range topics {
		if err := p.writeFrame(conn, models.ClientFrame{Action: models.ActionSubscribe, Topic: topic}); err != nil {
			return true, err
		}
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		_ = conn.SetReadDeadline(time.Now().Add(pushReadWait))
		p.dispatch(data)
	}
}

type inboundFrame struct {
	models.Event
	Topic string `json:"topic"`
	Error string `json:"error"`
}

func (p *PushChannel) dispatch(data []byte) {
	var f inboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		p.log.Warn().Err(err).Msg("dropping malformed push frame")
		return
	}

	switch f.Type {
	case models.EventMessageCreated, models.EventMessagesRead:
	case models.ActionSubscribe:
		p.mu.Lock()
		if _, ok := p.topics[f.Topic]; ok {
			p.acked[f.Topic] = true
		}
		p.mu.Unlock()
		return
	case "error":
		p.log.Warn().
			Err(errors.E(errors.TransportError, "push.subscribe", errors.NewAppError(0, f.Error))).
			Str("topic", f.Topic).
			Msg("push subscription rejected")
		return
	default:
		return
	}

	p.mu.Lock()
	handlers := make([]Handler, 0, len(p.subs))
	for _, s := range p.subs {
		handlers = append(handlers, s.handler)
	}
	p.mu.Unlock()

	for _, h := range handlers {
		h(f.Event)
	}
}

func (p *PushChannel) setConn(gen int, conn *websocket.Conn) ([]string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.gen || p.closed {
		return nil, false
	}
	p.conn = conn
	p.connected = true
	p.acked = make(map[string]bool)
	topics := make([]string, 0, len(p.topics))
	for t := range p.topics {
		topics = append(topics, t)
	}
	return topics, true
}

func (p *PushChannel) clearConn(conn *websocket.Conn) {
	p.mu.Lock()
	if p.conn != conn {
		p.mu.Unlock()
		return
	}
	p.conn = nil
	p.connected = false
	p.acked = make(map[string]bool)
	p.mu.Unlock()
	p.notify(false)
}

func (p *PushChannel) notify(connected bool) {
	p.mu.Lock()
	fns := make([]func(bool), 0, len(p.status))
	for _, fn := range p.status {
		fns = append(fns, fn)
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn(connected)
	}
}

func (p *PushChannel) writeFrame(conn *websocket.Conn, frame models.ClientFrame) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(pushWriteWait))
	if err := conn.WriteJSON(frame); err != nil {
		p.log.Debug().Err(err).Str("action", frame.Action).Msg("push frame write failed")
		return err
	}
	return nil
}
