package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/nikverify/internal/repository"
	"gorm.io/gorm"
)

func createJobOutcomesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_job_outcomes",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.OutcomeModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_job_outcomes_job_position ON job_outcomes (job_id, position)`,
				`CREATE INDEX IF NOT EXISTS idx_job_outcomes_identifier ON job_outcomes (identifier)`,
				`CREATE INDEX IF NOT EXISTS idx_job_outcomes_failures ON job_outcomes (failure_reason) WHERE result = 'Error'`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.OutcomeModel{})
		},
	}
}
