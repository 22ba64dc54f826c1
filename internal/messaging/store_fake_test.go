package messaging

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/autocare360/autocare-backend/internal/models"
)

var errStoreDown = stderrors.New("store unavailable")

// memStore is an in-memory MessageStore. Fetches can be held open with gate
// and failures injected per operation.
type memStore struct {
	mu       sync.Mutex
	self     Session
	nextID   uint64
	messages []models.Message
	convs    []models.ConversationSummary

	gate       chan struct{}
	listErr    error
	createErr  error
	markErr    error
	markGate   chan struct{}
	markCalls  []uint
	listCalls  int
	convsCalls int
}

func newMemStore(self Session) *memStore {
	return &memStore{self: self, nextID: 1}
}

func (s *memStore) add(sender uint, role models.Role, receiver *uint, body string, at time.Time) models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := models.Message{
		ID:         s.nextID,
		SenderID:   sender,
		SenderRole: role,
		ReceiverID: receiver,
		Body:       body,
		CreatedAt:  at,
	}
	s.nextID++
	s.messages = append(s.messages, m)
	return m
}

func (s *memStore) wait(ctx context.Context) error {
	s.mu.Lock()
	gate := s.gate
	s.mu.Unlock()
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *memStore) list(ctx context.Context, keep func(*models.Message) bool) ([]models.Message, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []models.Message
	for i := range s.messages {
		if keep(&s.messages[i]) {
			out = append(out, s.messages[i])
		}
	}
	return out, nil
}

func (s *memStore) Create(ctx context.Context, receiverID *uint, body string) (*models.Message, error) {
	s.mu.Lock()
	err := s.createErr
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	m := s.add(s.self.UserID, s.self.Role, receiverID, body, time.Now())
	return &m, nil
}

func (s *memStore) ListWith(ctx context.Context, counterpartID uint) ([]models.Message, error) {
	return s.list(ctx, func(m *models.Message) bool {
		return PairScope(s.self.UserID, counterpartID).Relevant(m)
	})
}

func (s *memStore) ListMine(ctx context.Context) ([]models.Message, error) {
	return s.list(ctx, func(m *models.Message) bool { return m.Involves(s.self.UserID) })
}

func (s *memStore) ListCustomer(ctx context.Context, customerID uint) ([]models.Message, error) {
	return s.list(ctx, func(m *models.Message) bool { return m.Involves(customerID) })
}

func (s *memStore) ListConversations(ctx context.Context) ([]models.ConversationSummary, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.convsCalls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]models.ConversationSummary, len(s.convs))
	copy(out, s.convs)
	for i := range out {
		out[i].UnreadCount = 0
		for _, m := range s.messages {
			if m.SenderID == out[i].CustomerID && !m.IsRead {
				out[i].UnreadCount++
			}
		}
	}
	return out, nil
}

func (s *memStore) MarkRead(ctx context.Context, counterpartID uint) (int64, error) {
	s.mu.Lock()
	s.markCalls = append(s.markCalls, counterpartID)
	gate, err := s.markGate, s.markErr
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for i := range s.messages {
		m := &s.messages[i]
		if m.IsRead {
			continue
		}
		if readBy(s.self.UserID, s.self.Role, counterpartID)(m) {
			m.IsRead = true
			n++
		}
	}
	return n, nil
}

func (s *memStore) calls() []uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uint, len(s.markCalls))
	copy(out, s.markCalls)
	return out
}

func uintPtr(v uint) *uint { return &v }
