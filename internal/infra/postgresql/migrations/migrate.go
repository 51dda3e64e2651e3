package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/hookrelay/relay-engine/internal/repository"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		createDeliveryLogsTable(),
	})

	return m.Migrate()
}

func createDeliveryLogsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_delivery_logs",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.DeliveryModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_delivery_logs_source_created ON delivery_logs (source_id, created_at)`,
				`CREATE INDEX IF NOT EXISTS idx_delivery_logs_status_created ON delivery_logs (status, created_at)`,
				`CREATE INDEX IF NOT EXISTS idx_delivery_logs_retry_of ON delivery_logs (retry_of) WHERE retry_of IS NOT NULL`,
				`CREATE INDEX IF NOT EXISTS idx_delivery_logs_created_at ON delivery_logs (created_at)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.DeliveryModel{})
		},
	}
}
