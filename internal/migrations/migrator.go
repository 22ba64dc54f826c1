package migrations

import (
	"fmt"
	"time"

	"github.com/autocare360/autocare-backend/internal/models"
	"github.com/autocare360/autocare-backend/pkg/logger"
	"gorm.io/gorm"
)

// Migration is one versioned schema change applied after AutoMigrate.
type Migration struct {
	ID        string
	Name      string
	Up        func(db *gorm.DB) error
	DependsOn []string
}

// MigrationRecord tracks which migrations have been applied
type MigrationRecord struct {
	ID        string    `gorm:"primaryKey;type:text"`
	Name      string    `gorm:"type:text"`
	AppliedAt time.Time `gorm:"autoCreateTime"`
}

func (MigrationRecord) TableName() string {
	return "schema_migrations"
}

// Migrator handles database migrations
type Migrator struct {
	db         *gorm.DB
	migrations []Migration
}

func NewMigrator(db *gorm.DB) *Migrator {
	return &Migrator{
		db:         db,
		migrations: GetMigrations(),
	}
}

// AutoMigrate creates the tables for every persisted model.
func AutoMigrate(db *gorm.DB) error {
	for _, m := range []interface{}{&models.User{}, &models.Message{}} {
		if err := db.AutoMigrate(m); err != nil {
			return fmt.Errorf("failed to migrate table for %T: %w", m, err)
		}
	}
	return nil
}

// Run creates tables and then executes all pending migrations in order.
func (m *Migrator) Run() error {
	if err := AutoMigrate(m.db); err != nil {
		return err
	}
	if err := m.db.AutoMigrate(&MigrationRecord{}); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var applied []MigrationRecord
	if err := m.db.Find(&applied).Error; err != nil {
		return fmt.Errorf("failed to fetch applied migrations: %w", err)
	}

	appliedMap := make(map[string]bool)
	for _, r := range applied {
		appliedMap[r.ID] = true
	}

	for _, migration := range m.migrations {
		if appliedMap[migration.ID] {
			continue
		}

		for _, dep := range migration.DependsOn {
			if !appliedMap[dep] {
				return fmt.Errorf("migration %s depends on %s which is not applied", migration.ID, dep)
			}
		}

		logger.Info().Str("migration", migration.ID).Str("name", migration.Name).Msg("Running migration")

		if err := m.db.Transaction(func(tx *gorm.DB) error {
			if err := migration.Up(tx); err != nil {
				return err
			}
			return tx.Create(&MigrationRecord{
				ID:   migration.ID,
				Name: migration.Name,
			}).Error
		}); err != nil {
			logger.Error().Err(err).Str("migration", migration.ID).Msg("Migration failed")
			return fmt.Errorf("migration %s failed: %w", migration.ID, err)
		}

		appliedMap[migration.ID] = true
		logger.Info().Str("migration", migration.ID).Msg("Migration completed")
	}

	return nil
}

// GetMigrations returns all registered migrations in order
func GetMigrations() []Migration {
	return []Migration{
		Migration001AddThreadIndexes(),
		Migration002AddUnreadIndex(),
	}
}
