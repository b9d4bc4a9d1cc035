// Package migrations provides database migration management for mediacore.
package migrations

import (
	"github.com/embedops/mediacore/internal/models"
	"gorm.io/gorm"
)

// AllMigrations returns all registered migrations in order. Built-in scene
// seeding happens at the application layer (internal/scene.Store.New) the
// first time the catalogue is empty, not here — that keeps the seed set
// reachable from a fresh in-memory repository in tests too, not just a
// migrated database.
func AllMigrations() []Migration {
	return []Migration{
		migration001Schema(),
	}
}

// migration001Schema creates all database tables using GORM AutoMigrate.
func migration001Schema() Migration {
	return Migration{
		Version:     "001",
		Description: "Create all database tables",
		Up: func(tx *gorm.DB) error {
			return tx.AutoMigrate(
				&models.Scene{},
				&models.RecordingSession{},
			)
		},
		Down: func(tx *gorm.DB) error {
			tables := []string{"recording_sessions", "scenes"}
			for _, table := range tables {
				if tx.Migrator().HasTable(table) {
					if err := tx.Migrator().DropTable(table); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}
}
