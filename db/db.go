package db

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"IT_borrowing_system/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Config 对外只暴露 gorm 配置，测试用 sqlite 复用同一套
func Config() *gorm.Config {
	return &gorm.Config{
		// 设备删除后借用记录保留（展示为 Unknown Device），不建外键
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
		Logger:                                   newLogger(slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn)),
	}
}

// newLogger 只记慢查询和真正的错误；查无记录由调用方转成 NotFound
func newLogger(w logger.Writer) logger.Interface {
	return logger.New(w, logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}

func ConnectDB(dsn string) (*gorm.DB, error) {
	conn, err := gorm.Open(postgres.Open(dsn), Config())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := Migrate(conn); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	slog.Info("database connected")
	return conn, nil
}

// DSN builds a postgres DSN from the discrete DB_* settings.
func DSN(host, user, password, name, port string) string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		host, user, password, name, port,
	)
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.User{}, &models.Device{}, &models.Borrowing{}, &models.Review{}, &models.AuditLog{}); err != nil {
		return err
	}

	open := openStatusList()

	// 同一设备最多一条未结束的借用
	if err := db.Exec(fmt.Sprintf(`
	  CREATE UNIQUE INDEX IF NOT EXISTS %s_one_open_per_device
	  ON %s (device_id)
	  WHERE status IN (%s);
	`, models.BorrowingTable, models.BorrowingTable, open)).Error; err != nil {
		return err
	}

	// 逾期扫描
	if err := db.Exec(fmt.Sprintf(`
	  CREATE INDEX IF NOT EXISTS %s_status_due
	  ON %s (status, return_date);
	`, models.BorrowingTable, models.BorrowingTable)).Error; err != nil {
		return err
	}

	return nil
}

func openStatusList() string {
	quoted := make([]string, 0, len(models.OpenBorrowingStatuses))
	for _, s := range models.OpenBorrowingStatuses {
		quoted = append(quoted, "'"+string(s)+"'")
	}
	return strings.Join(quoted, ", ")
}
