package app

import (
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/evacnet/poekeeper/config"
	"github.com/evacnet/poekeeper/internal/domain"
)

func getDatabase(cfg config.DBConfig, workdir string) *gorm.DB {
	logLevel := logger.Silent
	if cfg.Debug {
		logLevel = logger.Info
	}
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	}

	var (
		db  *gorm.DB
		err error
	)
	switch cfg.Type {
	case "sqlite":
		dsn := filepath.Join(workdir, "data", cfg.Name+".db")
		db, err = gorm.Open(sqlite.Open(dsn), gormConfig)
	default:
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable TimeZone=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Passwd, cfg.Name, time.Local.String())
		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
	}
	if err != nil {
		panic(err)
	}
	return db
}

// default settings seeded into sys_config on first start
var defaultSettings = []domain.SysConfig{
	{ID: 1, Type: "keepalive", Name: "holdoff_seconds", Value: "30", Remark: "Delay between disable request and power-off"},
	{ID: 2, Type: "poller", Name: "status_interval", Value: "60", Remark: "Port status poll interval seconds"},
	{ID: 3, Type: "poller", Name: "snmp_interval", Value: "300", Remark: "SNMP reachability probe interval seconds"},
	{ID: 4, Type: "poller", Name: "max_workers", Value: "8", Remark: "Concurrent switch poll limit"},
}

func (a *Application) checkSettings() {
	for _, item := range defaultSettings {
		var existing domain.SysConfig
		err := a.gormDB.Where("type = ? and name = ?", item.Type, item.Name).First(&existing).Error
		if err == nil {
			continue
		}
		item.CreatedAt = time.Now()
		item.UpdatedAt = time.Now()
		if err := a.gormDB.Create(&item).Error; err != nil {
			zap.L().Error("seed setting failed",
				zap.String("type", item.Type), zap.String("name", item.Name), zap.Error(err))
		}
	}
}
