package messaging

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/autocare360/autocare-backend/internal/models"
	"github.com/autocare360/autocare-backend/pkg/errors"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serverConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *serverConn) write(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(v)
}

// pushServer speaks the server side of the push protocol.
type pushServer struct {
	t   *testing.T
	srv *httptest.Server

	mu     sync.Mutex
	conns  []*serverConn
	tokens []string
	frames []models.ClientFrame
	closed int
}

func newPushServer(t *testing.T) *pushServer {
	ps := &pushServer{t: t}
	upgrader := websocket.Upgrader{}
	ps.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := &serverConn{ws: ws}
		ps.mu.Lock()
		ps.conns = append(ps.conns, c)
		ps.tokens = append(ps.tokens, r.URL.Query().Get("token"))
		ps.mu.Unlock()

		go func() {
			defer func() {
				ps.mu.Lock()
				ps.closed++
				ps.mu.Unlock()
			}()
			for {
				var f models.ClientFrame
				if err := ws.ReadJSON(&f); err != nil {
					return
				}
				ps.mu.Lock()
				ps.frames = append(ps.frames, f)
				ps.mu.Unlock()
				_ = c.write(models.ServerAck{Type: f.Action, Topic: f.Topic})
			}
		}()
	}))
	t.Cleanup(ps.srv.Close)
	return ps
}

func (ps *pushServer) url() string {
	return "ws" + strings.TrimPrefix(ps.srv.URL, "http")
}

func (ps *pushServer) accepted() int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return len(ps.conns)
}

func (ps *pushServer) closedCount() int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.closed
}

func (ps *pushServer) actions(action string) int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	n := 0
	for _, f := range ps.frames {
		if f.Action == action {
			n++
		}
	}
	return n
}

func (ps *pushServer) latest() *serverConn {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.conns[len(ps.conns)-1]
}

func (ps *pushServer) send(ev models.Event) {
	require.NoError(ps.t, ps.latest().write(ev))
}

func (ps *pushServer) dropLatest() {
	_ = ps.latest().ws.Close()
}

type eventLog struct {
	mu     sync.Mutex
	events []models.Event
}

func (l *eventLog) handle(ev models.Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

func newTestPush(url string) *PushChannel {
	return NewPushChannel(PushConfig{
		URL:            url,
		Token:          "jwt-token",
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     50 * time.Millisecond,
	}, zerolog.Nop())
}

func TestPushChannel_DeliversEvents(t *testing.T) {
	ps := newPushServer(t)
	p := newTestPush(ps.url())
	defer p.Close()

	var log eventLog
	sub, err := p.Subscribe(customerC, log.handle)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.Eventually(t, func() bool { return p.Ready(customerC) }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, p.Connected())
	ps.mu.Lock()
	assert.Equal(t, []string{"jwt-token"}, ps.tokens)
	ps.mu.Unlock()

	m := msg(1, staffAlice, uintPtr(customerC), 0)
	ps.send(models.Event{Type: models.EventMessageCreated, Message: &m})

	require.Eventually(t, func() bool { return log.len() == 1 }, time.Second, 5*time.Millisecond)
	log.mu.Lock()
	assert.Equal(t, uint64(1), log.events[0].Message.ID)
	log.mu.Unlock()
}

func TestPushChannel_ReconnectsAndResubscribes(t *testing.T) {
	ps := newPushServer(t)
	p := newTestPush(ps.url())
	defer p.Close()

	var mu sync.Mutex
	var transitions []bool
	p.OnStatus(func(connected bool) {
		mu.Lock()
		transitions = append(transitions, connected)
		mu.Unlock()
	})

	var log eventLog
	sub, err := p.Subscribe(customerC, log.handle)
	require.NoError(t, err)
	defer sub.Unsubscribe()
	require.Eventually(t, func() bool { return p.Ready(customerC) }, 2*time.Second, 5*time.Millisecond)

	ps.dropLatest()

	require.Eventually(t, func() bool { return ps.accepted() == 2 && p.Ready(customerC) }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, ps.actions(models.ActionSubscribe))

	mu.Lock()
	assert.Equal(t, []bool{true, false, true}, transitions)
	mu.Unlock()

	m := msg(2, staffAlice, uintPtr(customerC), 0)
	ps.send(models.Event{Type: models.EventMessageCreated, Message: &m})
	require.Eventually(t, func() bool { return log.len() == 1 }, time.Second, 5*time.Millisecond)
}

func TestPushChannel_UnsubscribeIsPerRegistration(t *testing.T) {
	ps := newPushServer(t)
	p := newTestPush(ps.url())
	defer p.Close()

	var a, b eventLog
	subA, err := p.Subscribe(customerC, a.handle)
	require.NoError(t, err)
	subB, err := p.Subscribe(customerC, b.handle)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return p.Ready(customerC) }, 2*time.Second, 5*time.Millisecond)

	subA.Unsubscribe()
	subA.Unsubscribe()

	m := msg(3, staffAlice, uintPtr(customerC), 0)
	ps.send(models.Event{Type: models.EventMessageCreated, Message: &m})

	require.Eventually(t, func() bool { return b.len() == 1 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, a.len())
	assert.Zero(t, ps.actions(models.ActionUnsubscribe))

	subB.Unsubscribe()
	require.Eventually(t, func() bool { return ps.closedCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, p.Connected())
}

func TestPushChannel_DialFailureKeepsRetrying(t *testing.T) {
	ps := newPushServer(t)
	url := ps.url()
	ps.srv.Close()

	p := newTestPush(url)
	defer p.Close()

	sub, err := p.Subscribe(customerC, func(models.Event) {})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	time.Sleep(60 * time.Millisecond)
	assert.False(t, p.Connected())
}

func TestPushChannel_RejectsForeignTopic(t *testing.T) {
	ps := newPushServer(t)
	p := NewPushChannel(PushConfig{URL: ps.url(), Token: "jwt-token", UserID: customerC}, zerolog.Nop())
	defer p.Close()

	sub, err := p.Subscribe(customerD, func(models.Event) {})
	assert.Nil(t, sub)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.TransportError))
	assert.Equal(t, http.StatusForbidden, errors.StatusCode(err))
	assert.Zero(t, ps.accepted(), "a rejected topic never opens the connection")

	own, err := p.Subscribe(customerC, func(models.Event) {})
	require.NoError(t, err)
	defer own.Unsubscribe()
	require.Eventually(t, func() bool { return p.Ready(customerC) }, 2*time.Second, 5*time.Millisecond)
}
