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

type pagingPayload struct {
	Name   string `json:"name" validate:"required,min=1,max=200"`
	Remark string `json:"remark" validate:"omitempty,max=500"`
}

type pagingActivePayload struct {
	Active bool `json:"active"`
}

func (s *AdminServer) registerPagingRoutes(g *echo.Group) {
	g.GET("/paging", s.listPaging)
	g.POST("/paging", s.createPaging)
	g.PUT("/paging/:id", s.updatePaging)
	g.DELETE("/paging/:id", s.deletePaging)
	g.PUT("/paging/:id/active", s.setPagingActive)
}

func (s *AdminServer) listPaging(c echo.Context) error {
	page, pageSize := parsePagination(c)

	db := s.app.DB().Model(&domain.PagingDevice{})
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query paging devices", err.Error())
	}
	var devices []domain.PagingDevice
	if err := db.Order("id DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&devices).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query paging devices", err.Error())
	}
	return paged(c, devices, total, page, pageSize)
}

func (s *AdminServer) createPaging(c echo.Context) error {
	var payload pagingPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse paging parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	device := domain.PagingDevice{
		Name:      strings.TrimSpace(payload.Name),
		Remark:    payload.Remark,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := s.app.DB().Create(&device).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create paging device", err.Error())
	}
	return ok(c, device)
}

func (s *AdminServer) updatePaging(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid paging device ID", nil)
	}

	var device domain.PagingDevice
	if err := s.app.DB().First(&device, id).Error; errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusNotFound, "PAGING_NOT_FOUND", "Paging device not found", nil)
	} else if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query paging device", err.Error())
	}

	var payload pagingPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse paging parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	device.Name = strings.TrimSpace(payload.Name)
	device.Remark = payload.Remark
	device.UpdatedAt = time.Now()
	if err := s.app.DB().Save(&device).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update paging device", err.Error())
	}
	return ok(c, device)
}

func (s *AdminServer) deletePaging(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid paging device ID", nil)
	}
	if err := s.app.DB().Delete(&domain.PagingDevice{}, id).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to delete paging device", err.Error())
	}
	return ok(c, nil)
}

// setPagingActive marks a paging source selected or deselected. The
// eligible keep-alive device set follows from these flags.
func (s *AdminServer) setPagingActive(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid paging device ID", nil)
	}
	var payload pagingActivePayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse parameters", nil)
	}
	if err := s.app.Inventory().SetPagingActive(id, payload.Active); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail(c, http.StatusNotFound, "PAGING_NOT_FOUND", "Paging device not found", nil)
		}
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update paging device", err.Error())
	}
	return ok(c, echo.Map{"id": id, "active": payload.Active})
}
