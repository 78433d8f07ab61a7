package repository

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/apk-analysis/apk-verdict-go/internal/config"
	"github.com/apk-analysis/apk-verdict-go/internal/domain"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDB 初始化数据库连接
func InitDB(cfg *config.DatabaseConfig, dataDir string, log *logrus.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector

	if cfg.Type == "mysql" {
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName)
		dialector = mysql.Open(dsn)
	} else {
		// SQLite (fallback)
		dialector = sqlite.Open(filepath.Join(dataDir, "scans.db"))
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent), // 关闭 SQL 日志
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		PrepareStmt: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := autoMigrate(db, log); err != nil {
		return nil, err
	}

	return db, nil
}

// autoMigrate 自动迁移数据库表结构
func autoMigrate(db *gorm.DB, log *logrus.Logger) error {
	log.Info("Running database migrations...")

	if err := db.AutoMigrate(&domain.ScanRecord{}); err != nil {
		return err
	}

	log.Info("Database migrations completed")
	return nil
}
