package adminapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/evacnet/poekeeper/pkg/metrics"
)

func (s *AdminServer) registerMetricRoutes(g *echo.Group) {
	g.GET("/metrics/toggles", s.toggleLatency)
}

// toggleLatency summarizes toggle latency for one switch over a
// trailing window, default one hour.
func (s *AdminServer) toggleLatency(c echo.Context) error {
	ipaddr := strings.TrimSpace(c.QueryParam("ipaddr"))
	if ipaddr == "" {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "ipaddr query parameter is required", nil)
	}
	windowMinutes, _ := strconv.Atoi(strings.TrimSpace(c.QueryParam("window_minutes")))
	if windowMinutes <= 0 || windowMinutes > 7*24*60 {
		windowMinutes = 60
	}

	summary := metrics.ToggleLatencySummary(ipaddr, time.Duration(windowMinutes)*time.Minute)
	return ok(c, echo.Map{
		"ipaddr":         ipaddr,
		"window_minutes": windowMinutes,
		"summary":        summary,
	})
}
