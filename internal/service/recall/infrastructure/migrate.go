package infrastructure

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"recall/internal/pkg/database"
)

// OpenGorm 用同一份数据库配置创建 gorm 连接，只在迁移命令中使用。
func OpenGorm(cfg database.Config) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open gorm")
	}
	return db, nil
}

// AutoMigrate 创建或补齐 t_merchant、t_order、t_recall 三张表。
func AutoMigrate(ctx context.Context, db *gorm.DB) error {
	err := db.WithContext(ctx).
		Set("gorm:table_options", "ENGINE=InnoDB DEFAULT CHARSET=utf8mb4").
		AutoMigrate(&MerchantModel{}, &OrderModel{}, &RecallModel{})
	return errors.Wrap(err, "auto migrate")
}
