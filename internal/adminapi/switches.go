package adminapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/evacnet/poekeeper/internal/domain"
	"github.com/evacnet/poekeeper/internal/switchctl"
)

type switchPayload struct {
	Name          string `json:"name" validate:"required,min=1,max=200"`
	SwitchType    string `json:"switch_type" validate:"required,min=1,max=50"`
	Ipaddr        string `json:"ipaddr" validate:"required,ip"`
	Password      string `json:"password" validate:"required,min=1,max=200"`
	SnmpPort      int    `json:"snmp_port" validate:"omitempty,min=1,max=65535"`
	SnmpCommunity string `json:"snmp_community" validate:"omitempty,max=100"`
	SnmpState     string `json:"snmp_state" validate:"omitempty,oneof=enabled disabled"`
	Status        string `json:"status" validate:"omitempty,oneof=enabled disabled"`
	Remark        string `json:"remark" validate:"omitempty,max=500"`
}

func (s *AdminServer) registerSwitchRoutes(g *echo.Group) {
	g.GET("/switches", s.listSwitches)
	g.GET("/switches/:id", s.getSwitch)
	g.POST("/switches", s.createSwitch)
	g.PUT("/switches/:id", s.updateSwitch)
	g.DELETE("/switches/:id", s.deleteSwitch)
	g.GET("/switches/:id/ports", s.getSwitchPorts)
	g.POST("/switches/:id/test", s.testSwitch)
}

func (s *AdminServer) listSwitches(c echo.Context) error {
	page, pageSize := parsePagination(c)

	db := s.app.DB().Model(&domain.PoeSwitch{})
	if q := strings.TrimSpace(c.QueryParam("q")); q != "" {
		db = db.Where("LOWER(name) LIKE ? OR ipaddr LIKE ?", "%"+strings.ToLower(q)+"%", "%"+q+"%")
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query switches", err.Error())
	}

	var switches []domain.PoeSwitch
	if err := db.Order("id DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&switches).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query switches", err.Error())
	}
	return paged(c, switches, total, page, pageSize)
}

func (s *AdminServer) getSwitch(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid switch ID", nil)
	}
	sw, err := s.app.Inventory().GetSwitch(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusNotFound, "SWITCH_NOT_FOUND", "Switch not found", nil)
	} else if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query switch", err.Error())
	}
	return ok(c, sw)
}

func (s *AdminServer) createSwitch(c echo.Context) error {
	var payload switchPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse switch parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	var exists int64
	s.app.DB().Model(&domain.PoeSwitch{}).Where("ipaddr = ?", payload.Ipaddr).Count(&exists)
	if exists > 0 {
		return fail(c, http.StatusConflict, "SWITCH_EXISTS", "Switch address already registered", nil)
	}

	sw := domain.PoeSwitch{
		Name:          strings.TrimSpace(payload.Name),
		SwitchType:    payload.SwitchType,
		Ipaddr:        payload.Ipaddr,
		Password:      payload.Password,
		SnmpPort:      payload.SnmpPort,
		SnmpCommunity: payload.SnmpCommunity,
		SnmpState:     payload.SnmpState,
		Status:        payload.Status,
	}
	if sw.Status == "" {
		sw.Status = "enabled"
	}
	sw.Remark = payload.Remark
	if err := s.app.Inventory().SaveSwitch(&sw); err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create switch", err.Error())
	}
	return ok(c, sw)
}

func (s *AdminServer) updateSwitch(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid switch ID", nil)
	}
	sw, err := s.app.Inventory().GetSwitch(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusNotFound, "SWITCH_NOT_FOUND", "Switch not found", nil)
	} else if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query switch", err.Error())
	}

	var payload switchPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse switch parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	sw.Name = strings.TrimSpace(payload.Name)
	sw.SwitchType = payload.SwitchType
	sw.Ipaddr = payload.Ipaddr
	sw.Password = payload.Password
	sw.SnmpPort = payload.SnmpPort
	sw.SnmpCommunity = payload.SnmpCommunity
	sw.SnmpState = payload.SnmpState
	if payload.Status != "" {
		sw.Status = payload.Status
	}
	sw.Remark = payload.Remark
	sw.UpdatedAt = time.Now()
	if err := s.app.Inventory().SaveSwitch(sw); err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update switch", err.Error())
	}
	return ok(c, sw)
}

func (s *AdminServer) deleteSwitch(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid switch ID", nil)
	}

	var attached int64
	s.app.DB().Model(&domain.PoeDevice{}).Where("switch_id = ?", id).Count(&attached)
	if attached > 0 {
		return fail(c, http.StatusConflict, "SWITCH_IN_USE", "Switch still has attached devices", nil)
	}

	if err := s.app.DB().Delete(&domain.PoeSwitch{}, id).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to delete switch", err.Error())
	}
	return ok(c, nil)
}

// getSwitchPorts reads live admin state from the hardware.
func (s *AdminServer) getSwitchPorts(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid switch ID", nil)
	}
	sw, err := s.app.Inventory().GetSwitch(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusNotFound, "SWITCH_NOT_FOUND", "Switch not found", nil)
	} else if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query switch", err.Error())
	}

	client, err := s.app.Registry().GetOrCreate(switchctl.SwitchType(sw.SwitchType),
		switchctl.Credentials{Ipaddr: sw.Ipaddr, Password: sw.Password})
	if err != nil {
		return fail(c, http.StatusBadRequest, "UNSUPPORTED_SWITCH", "Unsupported switch type", err.Error())
	}

	ctx, cancel := contextWithTimeout(30 * time.Second)
	defer cancel()
	statuses, err := client.GetPortStatuses(ctx)
	if err != nil {
		return fail(c, http.StatusBadGateway, "SWITCH_UNREACHABLE", "Failed to read port state", err.Error())
	}
	return ok(c, statuses)
}

// testSwitch checks only that the login page answers.
func (s *AdminServer) testSwitch(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid switch ID", nil)
	}
	sw, err := s.app.Inventory().GetSwitch(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusNotFound, "SWITCH_NOT_FOUND", "Switch not found", nil)
	} else if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query switch", err.Error())
	}

	client, err := s.app.Registry().GetOrCreate(switchctl.SwitchType(sw.SwitchType),
		switchctl.Credentials{Ipaddr: sw.Ipaddr, Password: sw.Password})
	if err != nil {
		return fail(c, http.StatusBadRequest, "UNSUPPORTED_SWITCH", "Unsupported switch type", err.Error())
	}

	ctx, cancel := contextWithTimeout(10 * time.Second)
	defer cancel()
	reachable := client.TestConnection(ctx)
	s.app.Inventory().MarkSwitchProbe(sw.ID, reachable, "manual test")
	return ok(c, echo.Map{"reachable": reachable})
}
