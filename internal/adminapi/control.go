package adminapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/evacnet/poekeeper/internal/switchctl"
)

type bulkTogglePayload struct {
	Devices []struct {
		DeviceID int64 `json:"device_id,string" validate:"required"`
		Enabled  bool  `json:"enabled"`
	} `json:"devices" validate:"required,min=1,dive"`
	Mode         string `json:"mode" validate:"omitempty,oneof=parallel sequential"`
	InterDelayMs int    `json:"inter_delay_ms" validate:"omitempty,min=0,max=10000"`
}

func (s *AdminServer) registerControlRoutes(g *echo.Group) {
	g.POST("/control/toggle", s.bulkToggle)
	g.POST("/control/clear_sessions", s.clearSessions)
}

// bulkToggle powers a set of device ports in one request. Results are
// reported per device; a partial failure is HTTP 200 with per-entry
// error strings.
func (s *AdminServer) bulkToggle(c echo.Context) error {
	var payload bulkTogglePayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse toggle parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	mode := switchctl.ModeSequential
	if payload.Mode == string(switchctl.ModeParallel) {
		mode = switchctl.ModeParallel
	}

	devices := make([]switchctl.DeviceToggle, 0, len(payload.Devices))
	for _, d := range payload.Devices {
		devices = append(devices, switchctl.DeviceToggle{DeviceID: d.DeviceID, Enabled: d.Enabled})
	}

	ctx, cancel := contextWithTimeout(120 * time.Second)
	defer cancel()
	results := s.app.ToggleBulk(ctx, devices,
		mode, time.Duration(payload.InterDelayMs)*time.Millisecond, "api")
	return ok(c, results)
}

// clearSessions logs out every cached switch session.
func (s *AdminServer) clearSessions(c echo.Context) error {
	ctx, cancel := contextWithTimeout(30 * time.Second)
	defer cancel()
	s.app.ClearAllSessions(ctx)
	return ok(c, nil)
}
