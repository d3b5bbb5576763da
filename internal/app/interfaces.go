package app

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/evacnet/poekeeper/config"
	"github.com/evacnet/poekeeper/internal/inventory"
	"github.com/evacnet/poekeeper/internal/keepalive"
	"github.com/evacnet/poekeeper/internal/switchctl"
)

// DBProvider provides database access
type DBProvider interface {
	DB() *gorm.DB
}

// ConfigProvider provides application configuration
type ConfigProvider interface {
	Config() *config.AppConfig
}

// SettingsProvider provides system settings access
type SettingsProvider interface {
	GetSettingsStringValue(category, key string) string
	GetSettingsInt64Value(category, key string) int64
	GetSettingsBoolValue(category, key string) bool
}

// SchedulerProvider provides task scheduling capability
type SchedulerProvider interface {
	Scheduler() *cron.Cron
}

// ControlProvider exposes the PoE control operations to the admin
// API and other collaborators
type ControlProvider interface {
	ToggleSingle(ctx context.Context, deviceID int64, enabled bool, source string) error
	ToggleBulk(ctx context.Context, devices []switchctl.DeviceToggle, mode switchctl.Mode, interDelay time.Duration, source string) []switchctl.DeviceResult
	ClearAllSessions(ctx context.Context)
	Inventory() *inventory.Repository
	Registry() *switchctl.Registry
	Coordinator() *keepalive.Coordinator
}

// AppContext combines all provider interfaces for full application context.
// Services should depend on specific providers or this combined interface.
type AppContext interface {
	DBProvider
	ConfigProvider
	SettingsProvider
	SchedulerProvider
	ControlProvider

	MigrateDB(track bool) error
	InitDb()
}
