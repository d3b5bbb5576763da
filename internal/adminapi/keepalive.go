package adminapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type keepaliveDisablePayload struct {
	Force bool `json:"force"`
}

type keepaliveExcludePayload struct {
	DeviceID int64 `json:"device_id,string" validate:"required"`
	Excluded bool  `json:"excluded"`
}

type keepaliveExcludeAllPayload struct {
	Excluded bool `json:"excluded"`
}

type keepaliveSimulatePayload struct {
	Simulate bool `json:"simulate"`
}

func (s *AdminServer) registerKeepaliveRoutes(g *echo.Group) {
	g.GET("/keepalive/status", s.keepaliveStatus)
	g.POST("/keepalive/enable", s.keepaliveEnable)
	g.POST("/keepalive/disable", s.keepaliveDisable)
	g.POST("/keepalive/exclude", s.keepaliveExclude)
	g.POST("/keepalive/exclude_all", s.keepaliveExcludeAll)
	g.POST("/keepalive/simulate", s.keepaliveSimulate)
}

func (s *AdminServer) keepaliveStatus(c echo.Context) error {
	on, remaining := s.app.Coordinator().Status()
	return ok(c, echo.Map{
		"on":                on,
		"countdown_seconds": remaining,
		"excluded_ids":      s.app.Coordinator().ExcludedIDs(),
		"simulate":          s.app.Coordinator().Simulating(),
	})
}

func (s *AdminServer) keepaliveEnable(c echo.Context) error {
	s.app.Coordinator().Enable()
	on, remaining := s.app.Coordinator().Status()
	return ok(c, echo.Map{"on": on, "countdown_seconds": remaining})
}

func (s *AdminServer) keepaliveDisable(c echo.Context) error {
	var payload keepaliveDisablePayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse parameters", nil)
	}
	s.app.Coordinator().Disable(payload.Force)
	on, remaining := s.app.Coordinator().Status()
	return ok(c, echo.Map{"on": on, "countdown_seconds": remaining})
}

func (s *AdminServer) keepaliveExclude(c echo.Context) error {
	var payload keepaliveExcludePayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}
	s.app.Coordinator().SetExcluded(payload.DeviceID, payload.Excluded)
	return ok(c, echo.Map{"excluded_ids": s.app.Coordinator().ExcludedIDs()})
}

func (s *AdminServer) keepaliveExcludeAll(c echo.Context) error {
	var payload keepaliveExcludeAllPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse parameters", nil)
	}
	s.app.Coordinator().SetAllExcluded(payload.Excluded)
	return ok(c, echo.Map{"excluded_ids": s.app.Coordinator().ExcludedIDs()})
}

// keepaliveSimulate flips rehearsal mode: the state machine keeps
// running but hardware is left untouched.
func (s *AdminServer) keepaliveSimulate(c echo.Context) error {
	var payload keepaliveSimulatePayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse parameters", nil)
	}
	s.app.Coordinator().SetSimulate(payload.Simulate)
	return ok(c, echo.Map{"simulate": s.app.Coordinator().Simulating()})
}
