package adminapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

func (s *AdminServer) registerLogRoutes(g *echo.Group) {
	g.GET("/logs/toggles", s.listToggleLogs)
}

func (s *AdminServer) listToggleLogs(c echo.Context) error {
	limit, _ := strconv.Atoi(strings.TrimSpace(c.QueryParam("limit")))
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	logs, err := s.app.Inventory().RecentToggleLogs(limit)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query toggle logs", err.Error())
	}
	return ok(c, logs)
}
