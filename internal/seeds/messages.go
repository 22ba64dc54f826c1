package seeds

import (
	"context"
	"log"

	"github.com/autocare360/autocare-backend/internal/models"
	"github.com/autocare360/autocare-backend/internal/services"
	"gorm.io/gorm"
)

type scriptLine struct {
	From string
	To   string // empty: the customer writes to the pool
	Body string
}

var conversation = []scriptLine{
	{From: "carla@example.com", Body: "Hi, my brakes squeal every time I stop."},
	{From: "alice@autocare360.dev", To: "carla@example.com", Body: "Thanks Carla. Could you bring the car in tomorrow morning?"},
	{From: "carla@example.com", Body: "Sure, is 9am fine?"},
	{From: "bob@autocare360.dev", To: "carla@example.com", Body: "9am works, we've booked you in."},
	{From: "dinesh@example.com", Body: "Is my oil change done yet?"},
}

// SeedConversations writes a sample support history through the message
// service unless messages already exist.
func SeedConversations(ctx context.Context, db *gorm.DB, users map[string]models.User) error {
	var count int64
	if err := db.Model(&models.Message{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		log.Printf("💬 %d messages present, skipping sample conversation", count)
		return nil
	}

	log.Println("💬 Seeding Conversations...")
	svc := services.NewMessageService(db)
	for _, line := range conversation {
		sender := users[line.From]
		in := services.CreateInput{Body: line.Body}
		if line.To != "" {
			to := users[line.To].ID
			in.ReceiverID = &to
		}
		if _, _, err := svc.Create(ctx, &sender, in); err != nil {
			return err
		}
	}
	return nil
}
