package adminapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/evacnet/poekeeper/internal/domain"
)

type devicePayload struct {
	Name            string `json:"name" validate:"required,min=1,max=200"`
	SwitchID        int64  `json:"switch_id,string" validate:"required"`
	Port            int    `json:"port" validate:"required,min=1,max=8"`
	Mode            string `json:"mode" validate:"required,oneof=auto always_on always_off"`
	LinkedPagingIds string `json:"linked_paging_ids" validate:"omitempty,max=500"`
	Remark          string `json:"remark" validate:"omitempty,max=500"`
}

type deviceTogglePayload struct {
	Enabled bool `json:"enabled"`
}

func (s *AdminServer) registerDeviceRoutes(g *echo.Group) {
	g.GET("/devices", s.listDevices)
	g.GET("/devices/:id", s.getDevice)
	g.POST("/devices", s.createDevice)
	g.PUT("/devices/:id", s.updateDevice)
	g.DELETE("/devices/:id", s.deleteDevice)
	g.POST("/devices/:id/toggle", s.toggleDevice)
}

func (s *AdminServer) listDevices(c echo.Context) error {
	page, pageSize := parsePagination(c)

	db := s.app.DB().Model(&domain.PoeDevice{})
	if q := strings.TrimSpace(c.QueryParam("q")); q != "" {
		db = db.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(q)+"%")
	}
	if sid := strings.TrimSpace(c.QueryParam("switch_id")); sid != "" {
		db = db.Where("switch_id = ?", sid)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query devices", err.Error())
	}

	var devices []domain.PoeDevice
	if err := db.Order("id DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&devices).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query devices", err.Error())
	}
	return paged(c, devices, total, page, pageSize)
}

func (s *AdminServer) getDevice(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid device ID", nil)
	}
	device, err := s.app.Inventory().GetDevice(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusNotFound, "DEVICE_NOT_FOUND", "Device not found", nil)
	} else if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query device", err.Error())
	}
	return ok(c, device)
}

func (s *AdminServer) createDevice(c echo.Context) error {
	var payload devicePayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse device parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	if _, err := s.app.Inventory().GetSwitch(payload.SwitchID); errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusBadRequest, "SWITCH_NOT_FOUND", "Owning switch not found", nil)
	}

	var exists int64
	s.app.DB().Model(&domain.PoeDevice{}).
		Where("switch_id = ? and port = ?", payload.SwitchID, payload.Port).Count(&exists)
	if exists > 0 {
		return fail(c, http.StatusConflict, "PORT_IN_USE", "Port already assigned on this switch", nil)
	}

	device := domain.PoeDevice{
		Name:            strings.TrimSpace(payload.Name),
		SwitchID:        payload.SwitchID,
		Port:            payload.Port,
		Mode:            payload.Mode,
		LinkedPagingIds: payload.LinkedPagingIds,
		Remark:          payload.Remark,
	}
	if err := s.app.Inventory().SaveDevice(&device); err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create device", err.Error())
	}
	return ok(c, device)
}

func (s *AdminServer) updateDevice(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid device ID", nil)
	}
	device, err := s.app.Inventory().GetDevice(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusNotFound, "DEVICE_NOT_FOUND", "Device not found", nil)
	} else if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query device", err.Error())
	}

	var payload devicePayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse device parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	device.Name = strings.TrimSpace(payload.Name)
	device.SwitchID = payload.SwitchID
	device.Port = payload.Port
	device.Mode = payload.Mode
	device.LinkedPagingIds = payload.LinkedPagingIds
	device.Remark = payload.Remark
	device.UpdatedAt = time.Now()
	if err := s.app.Inventory().SaveDevice(device); err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update device", err.Error())
	}
	return ok(c, device)
}

func (s *AdminServer) deleteDevice(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid device ID", nil)
	}
	if err := s.app.DB().Delete(&domain.PoeDevice{}, id).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to delete device", err.Error())
	}
	return ok(c, nil)
}

// toggleDevice powers one device's port directly, bypassing the
// keep-alive state machine. Recorded with source "api".
func (s *AdminServer) toggleDevice(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid device ID", nil)
	}
	var payload deviceTogglePayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse toggle parameters", nil)
	}

	if _, err := s.app.Inventory().GetDevice(id); errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusNotFound, "DEVICE_NOT_FOUND", "Device not found", nil)
	}

	ctx, cancel := contextWithTimeout(60 * time.Second)
	defer cancel()
	if err := s.app.ToggleSingle(ctx, id, payload.Enabled, "api"); err != nil {
		return fail(c, http.StatusBadGateway, "TOGGLE_FAILED", "Port toggle failed", err.Error())
	}
	return ok(c, echo.Map{"device_id": id, "enabled": payload.Enabled})
}
