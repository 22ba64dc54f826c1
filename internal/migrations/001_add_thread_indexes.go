package migrations

import "gorm.io/gorm"

// Migration001AddThreadIndexes covers the two thread queries:
// pair history (sender_id, receiver_id) and customer history ordered by time.
func Migration001AddThreadIndexes() Migration {
	return Migration{
		ID:   "001_add_thread_indexes",
		Name: "Add indexes for thread history queries",
		Up: func(db *gorm.DB) error {
			stmts := []string{
				`CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages (sender_id, receiver_id, created_at)`,
				`CREATE INDEX IF NOT EXISTS idx_messages_receiver_time ON messages (receiver_id, created_at)`,
			}
			for _, s := range stmts {
				if err := db.Exec(s).Error; err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// Migration002AddUnreadIndex speeds up the per-customer unread aggregate.
func Migration002AddUnreadIndex() Migration {
	return Migration{
		ID:        "002_add_unread_index",
		Name:      "Add index for unread counters",
		DependsOn: []string{"001_add_thread_indexes"},
		Up: func(db *gorm.DB) error {
			return db.Exec(`CREATE INDEX IF NOT EXISTS idx_messages_unread ON messages (sender_id, is_read)`).Error
		},
	}
}
