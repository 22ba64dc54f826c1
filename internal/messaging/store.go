package messaging

import (
	"context"

	"github.com/autocare360/autocare-backend/internal/models"
)

// MessageStore is the durable message API the client core consumes. The
// REST implementation is StoreClient; tests use in-memory fakes.
type MessageStore interface {
	// Create persists a message. A nil receiverID broadcasts to the employee pool.
	Create(ctx context.Context, receiverID *uint, body string) (*models.Message, error)
	// ListWith returns the full pair history with one counterpart.
	ListWith(ctx context.Context, counterpartID uint) ([]models.Message, error)
	// ListMine returns the authenticated customer's pool-shared thread.
	ListMine(ctx context.Context) ([]models.Message, error)
	// ListCustomer returns the pool-shared thread of one customer (staff side).
	ListCustomer(ctx context.Context, customerID uint) ([]models.Message, error)
	// ListConversations returns the pool's per-customer summaries.
	ListConversations(ctx context.Context) ([]models.ConversationSummary, error)
	// MarkRead marks everything from counterpartID addressed to the caller as read.
	MarkRead(ctx context.Context, counterpartID uint) (int64, error)
}
