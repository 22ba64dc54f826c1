package messaging

import (
	"context"
	"sort"

	"github.com/autocare360/autocare-backend/internal/models"
)

// Merge returns the union of list and incoming keyed by message id, ordered
// by (createdAt, id). The first copy of an id wins, except that isRead and
// readAt are folded so a message never goes back to unread. Inputs are not
// modified.
func Merge(list []models.Message, incoming ...models.Message) []models.Message {
	out := make([]models.Message, 0, len(list)+len(incoming))
	index := make(map[uint64]int, len(list)+len(incoming))

	add := func(m models.Message) {
		if i, ok := index[m.ID]; ok {
			cur := &out[i]
			if m.IsRead && !cur.IsRead {
				cur.IsRead = true
			}
			if cur.ReadAt == nil && m.ReadAt != nil {
				cur.ReadAt = m.ReadAt
			}
			return
		}
		index[m.ID] = len(out)
		out = append(out, m)
	}
	for _, m := range list {
		add(m)
	}
	for _, m := range incoming {
		add(m)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Before(&out[j])
	})
	return out
}

// ScopeKind selects which messages a thread shows and how it is fetched.
type ScopeKind int

const (
	// ScopePair is a direct conversation between Self and CounterpartID.
	ScopePair ScopeKind = iota
	// ScopeCustomer is a customer's own thread with the whole employee pool.
	ScopeCustomer
	// ScopePoolCustomer is one customer's thread as seen by staff.
	ScopePoolCustomer
)

// Scope defines thread membership.
type Scope struct {
	Kind          ScopeKind
	Self          uint
	CounterpartID uint
	CustomerID    uint
}

func PairScope(self, counterpartID uint) Scope {
	return Scope{Kind: ScopePair, Self: self, CounterpartID: counterpartID}
}

func CustomerScope(customerID uint) Scope {
	return Scope{Kind: ScopeCustomer, Self: customerID, CustomerID: customerID}
}

func PoolCustomerScope(self, customerID uint) Scope {
	return Scope{Kind: ScopePoolCustomer, Self: self, CustomerID: customerID}
}

// Relevant reports whether m belongs to the thread.
func (s Scope) Relevant(m *models.Message) bool {
	switch s.Kind {
	case ScopePair:
		if m.ReceiverID == nil {
			return false
		}
		return (m.SenderID == s.Self && *m.ReceiverID == s.CounterpartID) ||
			(m.SenderID == s.CounterpartID && *m.ReceiverID == s.Self)
	default:
		return m.Involves(s.CustomerID)
	}
}

// ReadCounterpart is the counterpart id passed to mark-read when the thread
// is opened.
func (s Scope) ReadCounterpart() uint {
	switch s.Kind {
	case ScopePair:
		return s.CounterpartID
	case ScopeCustomer:
		return models.PoolCounterpart
	default:
		return s.CustomerID
	}
}

// Fetch loads the thread's history from store.
func (s Scope) Fetch(ctx context.Context, store MessageStore) ([]models.Message, error) {
	switch s.Kind {
	case ScopePair:
		return store.ListWith(ctx, s.CounterpartID)
	case ScopeCustomer:
		return store.ListMine(ctx)
	default:
		return store.ListCustomer(ctx, s.CustomerID)
	}
}

// ReplyTo is the receiver for a message composed in this thread. A customer
// writing to the pool replies to nobody in particular.
func (s Scope) ReplyTo() *uint {
	switch s.Kind {
	case ScopePair:
		id := s.CounterpartID
		return &id
	case ScopeCustomer:
		return nil
	default:
		id := s.CustomerID
		return &id
	}
}
