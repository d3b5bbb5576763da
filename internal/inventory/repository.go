// Package inventory persists switches, attached devices and toggle
// audit records, and feeds the control plane its device picture.
package inventory

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/evacnet/poekeeper/internal/domain"
	"github.com/evacnet/poekeeper/internal/keepalive"
	"github.com/evacnet/poekeeper/internal/switchctl"
)

type Repository struct {
	db   *gorm.DB
	node *snowflake.Node
}

func NewRepository(db *gorm.DB) (*Repository, error) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, err
	}
	return &Repository{db: db, node: node}, nil
}

// Resolve maps a device to its switch endpoint. Devices without a
// switch record, or on a disabled switch, resolve to nothing and are
// dropped from batches.
func (r *Repository) Resolve(deviceID int64) (switchctl.Endpoint, bool) {
	var device domain.PoeDevice
	if err := r.db.First(&device, deviceID).Error; err != nil {
		return switchctl.Endpoint{}, false
	}
	var sw domain.PoeSwitch
	if err := r.db.First(&sw, device.SwitchID).Error; err != nil {
		return switchctl.Endpoint{}, false
	}
	if sw.Status == "disabled" {
		return switchctl.Endpoint{}, false
	}
	return switchctl.Endpoint{
		SwitchID:    sw.ID,
		SwitchType:  switchctl.SwitchType(sw.SwitchType),
		Credentials: switchctl.Credentials{Ipaddr: sw.Ipaddr, Password: sw.Password},
		Port:        device.Port,
	}, true
}

// ControlDevices feeds the keep-alive eligibility filter.
func (r *Repository) ControlDevices() []keepalive.DeviceLink {
	var devices []domain.PoeDevice
	if err := r.db.Find(&devices).Error; err != nil {
		zap.L().Error("load control devices failed", zap.Error(err))
		return nil
	}
	out := make([]keepalive.DeviceLink, 0, len(devices))
	for _, device := range devices {
		out = append(out, keepalive.DeviceLink{
			ID:              device.ID,
			Mode:            device.Mode,
			LinkedPagingIDs: device.LinkedPagingList(),
		})
	}
	return out
}

// ActivePagingIDs currently selected paging sources.
func (r *Repository) ActivePagingIDs() []int64 {
	var ids []int64
	if err := r.db.Model(&domain.PagingDevice{}).
		Where("active = ?", true).
		Pluck("id", &ids).Error; err != nil {
		zap.L().Error("load active paging devices failed", zap.Error(err))
		return nil
	}
	return ids
}

// CommitResults records toggle outcomes: device power state and
// switch last-seen move only after an observed success, and every
// attempt lands in the audit log.
func (r *Repository) CommitResults(source string, results []switchctl.DeviceResult, enabled map[int64]bool) {
	now := time.Now()
	for _, result := range results {
		desired := enabled[result.DeviceID]
		if result.Success {
			if err := r.db.Model(&domain.PoeDevice{}).
				Where("id = ?", result.DeviceID).
				Updates(map[string]interface{}{"enabled": desired, "updated_at": now}).Error; err != nil {
				zap.L().Error("device state update failed",
					zap.Int64("device_id", result.DeviceID), zap.Error(err))
			}
			if err := r.db.Model(&domain.PoeSwitch{}).
				Where("id = ?", result.SwitchID).
				Updates(map[string]interface{}{"online": true, "last_seen_at": now}).Error; err != nil {
				zap.L().Error("switch last-seen update failed",
					zap.Int64("switch_id", result.SwitchID), zap.Error(err))
			}
		}
		if err := r.db.Create(&domain.PoeToggleLog{
			ID:        r.node.Generate().Int64(),
			DeviceID:  result.DeviceID,
			SwitchID:  result.SwitchID,
			Port:      result.Port,
			Enabled:   desired,
			Success:   result.Success,
			ErrMsg:    result.Error,
			Source:    source,
			CreatedAt: now,
		}).Error; err != nil {
			zap.L().Error("toggle audit write failed", zap.Error(err))
		}
	}
}

// MarkSwitchProbe stores a reachability probe outcome.
func (r *Repository) MarkSwitchProbe(switchID int64, online bool, message string) {
	updates := map[string]interface{}{
		"online":            online,
		"last_probe_result": message,
		"updated_at":        time.Now(),
	}
	if online {
		updates["last_seen_at"] = time.Now()
	}
	if err := r.db.Model(&domain.PoeSwitch{}).Where("id = ?", switchID).Updates(updates).Error; err != nil {
		zap.L().Error("switch probe update failed", zap.Int64("switch_id", switchID), zap.Error(err))
	}
}

func (r *Repository) ListSwitches() ([]domain.PoeSwitch, error) {
	var switches []domain.PoeSwitch
	err := r.db.Order("id").Find(&switches).Error
	return switches, err
}

func (r *Repository) GetSwitch(switchID int64) (*domain.PoeSwitch, error) {
	var sw domain.PoeSwitch
	if err := r.db.First(&sw, switchID).Error; err != nil {
		return nil, err
	}
	return &sw, nil
}

func (r *Repository) ListDevices() ([]domain.PoeDevice, error) {
	var devices []domain.PoeDevice
	err := r.db.Order("id").Find(&devices).Error
	return devices, err
}

func (r *Repository) GetDevice(deviceID int64) (*domain.PoeDevice, error) {
	var device domain.PoeDevice
	if err := r.db.First(&device, deviceID).Error; err != nil {
		return nil, err
	}
	return &device, nil
}

func (r *Repository) SaveSwitch(sw *domain.PoeSwitch) error {
	if sw.SwitchType == "" {
		sw.SwitchType = string(switchctl.SwitchTypeGS30xEP)
	}
	if sw.ID == 0 {
		sw.ID = r.node.Generate().Int64()
		return r.db.Create(sw).Error
	}
	return r.db.Save(sw).Error
}

func (r *Repository) SaveDevice(device *domain.PoeDevice) error {
	if device.Mode == "" {
		device.Mode = domain.ModeAuto
	}
	if device.ID == 0 {
		device.ID = r.node.Generate().Int64()
		return r.db.Create(device).Error
	}
	return r.db.Save(device).Error
}

func (r *Repository) SetPagingActive(pagingID int64, active bool) error {
	return r.db.Model(&domain.PagingDevice{}).
		Where("id = ?", pagingID).
		Update("active", active).Error
}

// RecentToggleLogs newest-first audit page.
func (r *Repository) RecentToggleLogs(limit int) ([]domain.PoeToggleLog, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	var logs []domain.PoeToggleLog
	err := r.db.Order("created_at desc").Limit(limit).Find(&logs).Error
	return logs, err
}
