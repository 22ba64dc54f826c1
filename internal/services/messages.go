package services

import (
	"context"
	stderrors "errors"
	"sort"
	"time"

	"github.com/autocare360/autocare-backend/internal/models"
	"github.com/autocare360/autocare-backend/pkg/errors"
	"github.com/autocare360/autocare-backend/pkg/utils"
	"github.com/dustin/go-humanize"
	"gorm.io/gorm"
)

// previewLength bounds lastMessage in conversation summaries.
const previewLength = 120

// MessageService owns the persistence rules of the support inbox.
type MessageService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewMessageService(db *gorm.DB) *MessageService {
	return &MessageService{db: db, now: time.Now}
}

// CreateInput is the body of a create-message request.
type CreateInput struct {
	ReceiverID *uint  `json:"receiverId"`
	Body       string `json:"body"`
}

// GetUser loads an active user by id.
func (s *MessageService) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("User not found")
		}
		return nil, err
	}
	return &user, nil
}

// Create validates and persists a message from sender. A nil ReceiverID is a
// broadcast to the employee pool and is only accepted from customers.
func (s *MessageService) Create(ctx context.Context, sender *models.User, in CreateInput) (*models.Message, models.Audience, error) {
	body, err := utils.SanitizeMessageBody(in.Body)
	if err != nil {
		return nil, models.Audience{}, errors.BadRequest(err.Error())
	}

	customerInvolved := sender.Role == models.RoleCustomer
	if in.ReceiverID == nil {
		if sender.Role.IsStaff() {
			return nil, models.Audience{}, errors.BadRequest("receiverId is required for staff messages")
		}
	} else {
		if *in.ReceiverID == sender.ID {
			return nil, models.Audience{}, errors.BadRequest("cannot send a message to yourself")
		}
		receiver, err := s.GetUser(ctx, *in.ReceiverID)
		if err != nil {
			return nil, models.Audience{}, err
		}
		if sender.Role == models.RoleCustomer && !receiver.Role.IsStaff() {
			return nil, models.Audience{}, errors.Forbidden("customers can only message staff")
		}
		if receiver.Role == models.RoleCustomer {
			customerInvolved = true
		}
	}

	msg := models.Message{
		SenderID:   sender.ID,
		ReceiverID: in.ReceiverID,
		SenderName: sender.Name,
		SenderRole: sender.Role,
		Body:       body,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return nil, models.Audience{}, err
	}

	audience := models.Audience{UserIDs: []uint{sender.ID}, Pool: customerInvolved}
	if in.ReceiverID != nil {
		audience.UserIDs = append(audience.UserIDs, *in.ReceiverID)
	}
	return &msg, audience, nil
}

// ListPair returns the full history between two users, oldest first.
func (s *MessageService) ListPair(ctx context.Context, me, other uint) ([]models.Message, error) {
	var messages []models.Message
	err := s.db.WithContext(ctx).Where(
		"(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
		me, other, other, me,
	).Order("created_at asc, id asc").Find(&messages).Error
	return messages, err
}

// ListForCustomer returns every message a customer sent or received,
// whichever staff member was on the other side.
func (s *MessageService) ListForCustomer(ctx context.Context, customerID uint) ([]models.Message, error) {
	var messages []models.Message
	err := s.db.WithContext(ctx).
		Where("sender_id = ? OR receiver_id = ?", customerID, customerID).
		Order("created_at asc, id asc").
		Find(&messages).Error
	return messages, err
}

type summaryRow struct {
	CustomerID    uint
	Name          string
	Role          models.Role
	Avatar        string
	LastMessageID uint64
	UnreadCount   int64
}

// Conversations lists one summary per customer that has exchanged messages
// with the pool, most recent first. UnreadCount counts that customer's
// messages no staff member has read yet.
func (s *MessageService) Conversations(ctx context.Context) ([]models.ConversationSummary, error) {
	query := `
		SELECT u.id AS customer_id, u.name AS name, u.role AS role, COALESCE(u.image, '') AS avatar,
			(SELECT m.id FROM messages m
				WHERE m.sender_id = u.id OR m.receiver_id = u.id
				ORDER BY m.created_at DESC, m.id DESC LIMIT 1) AS last_message_id,
			(SELECT COUNT(*) FROM messages m
				WHERE m.sender_id = u.id AND m.is_read = ?) AS unread_count
		FROM users u
		WHERE u.role = ? AND u.deleted_at IS NULL
			AND EXISTS (SELECT 1 FROM messages m WHERE m.sender_id = u.id OR m.receiver_id = u.id)
	`
	var rows []summaryRow
	if err := s.db.WithContext(ctx).Raw(query, false, models.RoleCustomer).Scan(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []models.ConversationSummary{}, nil
	}

	ids := make([]uint64, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.LastMessageID)
	}
	var last []models.Message
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&last).Error; err != nil {
		return nil, err
	}
	byID := make(map[uint64]models.Message, len(last))
	for _, m := range last {
		byID[m.ID] = m
	}

	now := s.now()
	summaries := make([]models.ConversationSummary, 0, len(rows))
	for _, r := range rows {
		m := byID[r.LastMessageID]
		summaries = append(summaries, models.ConversationSummary{
			CustomerID:    r.CustomerID,
			Name:          r.Name,
			Role:          r.Role,
			Avatar:        r.Avatar,
			LastMessage:   utils.TruncateString(m.Body, previewLength),
			LastMessageAt: m.CreatedAt,
			Time:          humanize.RelTime(m.CreatedAt, now, "ago", "from now"),
			UnreadCount:   r.UnreadCount,
		})
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].LastMessageAt.After(summaries[j].LastMessageAt)
	})
	return summaries, nil
}

// MarkRead flips isRead on every unread message from counterpartID that the
// reader is entitled to read, and returns how many changed plus who to tell.
//
// Staff reading a customer covers the customer's whole pool thread. A
// customer passing PoolCounterpart reads everything staff sent them.
func (s *MessageService) MarkRead(ctx context.Context, reader *models.User, counterpartID uint) (int64, models.Audience, error) {
	q := s.db.WithContext(ctx).Model(&models.Message{}).Where("is_read = ?", false)
	audience := models.Audience{UserIDs: []uint{reader.ID}}

	switch {
	case counterpartID == models.PoolCounterpart:
		if reader.Role != models.RoleCustomer {
			return 0, models.Audience{}, errors.BadRequest("only customers can read the pool thread")
		}
		q = q.Where("receiver_id = ?", reader.ID)
		audience.Pool = true
	default:
		counterpart, err := s.GetUser(ctx, counterpartID)
		if err != nil {
			return 0, models.Audience{}, err
		}
		audience.UserIDs = append(audience.UserIDs, counterpart.ID)
		if reader.Role.IsStaff() && counterpart.Role == models.RoleCustomer {
			q = q.Where("sender_id = ?", counterpart.ID)
			audience.Pool = true
		} else {
			q = q.Where("sender_id = ? AND receiver_id = ?", counterpart.ID, reader.ID)
			audience.Pool = counterpart.Role.IsStaff() && reader.Role == models.RoleCustomer
		}
	}

	now := s.now().UTC()
	result := q.Updates(map[string]interface{}{
		"is_read": true,
		"read_at": now,
	})
	if result.Error != nil {
		return 0, models.Audience{}, result.Error
	}
	return result.RowsAffected, audience, nil
}

// UnreadCount is the badge total for user: for staff every unread customer
// message plus unread direct messages, for customers unread replies.
func (s *MessageService) UnreadCount(ctx context.Context, user *models.User) (int64, error) {
	var count int64
	q := s.db.WithContext(ctx).Model(&models.Message{}).Where("is_read = ?", false)
	if user.Role.IsStaff() {
		q = q.Where("sender_role = ? OR receiver_id = ?", models.RoleCustomer, user.ID)
	} else {
		q = q.Where("receiver_id = ?", user.ID)
	}
	err := q.Count(&count).Error
	return count, err
}
