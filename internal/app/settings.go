package app

import (
	"time"

	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/evacnet/poekeeper/internal/domain"
)

// ConfigManager reads and writes sys_config settings with typed
// getters. Values are read through the database on every call; the
// tables are tiny and the callers are background jobs.
type ConfigManager struct {
	app *Application
}

func NewConfigManager(app *Application) *ConfigManager {
	return &ConfigManager{app: app}
}

func (m *ConfigManager) GetString(category, name string) string {
	var item domain.SysConfig
	if err := m.app.gormDB.Where("type = ? and name = ?", category, name).First(&item).Error; err != nil {
		return ""
	}
	return item.Value
}

func (m *ConfigManager) GetInt64(category, name string) int64 {
	return cast.ToInt64(m.GetString(category, name))
}

func (m *ConfigManager) GetBool(category, name string) bool {
	return cast.ToBool(m.GetString(category, name))
}

func (m *ConfigManager) Set(category, name, value string) error {
	result := m.app.gormDB.Model(&domain.SysConfig{}).
		Where("type = ? and name = ?", category, name).
		Updates(map[string]interface{}{"value": value, "updated_at": time.Now()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return m.app.gormDB.Create(&domain.SysConfig{
			ID:    time.Now().UnixNano(),
			Type:  category,
			Name:  name,
			Value: value,
		}).Error
	}
	zap.L().Info("setting updated",
		zap.String("type", category), zap.String("name", name), zap.String("value", value))
	return nil
}

// GetSettingsStringValue retrieves a string configuration value
func (a *Application) GetSettingsStringValue(category, key string) string {
	return a.configManager.GetString(category, key)
}

// GetSettingsInt64Value retrieves an int64 configuration value
func (a *Application) GetSettingsInt64Value(category, key string) int64 {
	return a.configManager.GetInt64(category, key)
}

// GetSettingsBoolValue retrieves a boolean configuration value
func (a *Application) GetSettingsBoolValue(category, key string) bool {
	return a.configManager.GetBool(category, key)
}
