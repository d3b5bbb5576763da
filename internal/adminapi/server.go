package adminapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/evacnet/poekeeper/internal/app"
)

// AdminServer serves the management REST API. Authentication is a
// bearer JWT issued by the login endpoint; everything under /api/v1
// except /auth/login requires it.
type AdminServer struct {
	root *echo.Echo
	app  app.AppContext
}

type requestValidator struct {
	validate *validator.Validate
}

func (v *requestValidator) Validate(i interface{}) error {
	return v.validate.Struct(i)
}

func NewAdminServer(appCtx app.AppContext) *AdminServer {
	s := &AdminServer{
		root: echo.New(),
		app:  appCtx,
	}
	s.root.HideBanner = true
	s.root.HidePort = true
	s.root.Validator = &requestValidator{validate: validator.New()}
	s.root.Use(middleware.Recover())
	s.root.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			zap.L().Debug("api request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status))
			return nil
		},
	}))
	s.initRoutes()
	return s
}

func (s *AdminServer) initRoutes() {
	s.root.POST("/api/v1/auth/login", s.login)

	api := s.root.Group("/api/v1")
	api.Use(echojwt.WithConfig(echojwt.Config{
		SigningKey: []byte(s.app.Config().Web.Secret),
	}))

	s.registerSwitchRoutes(api)
	s.registerDeviceRoutes(api)
	s.registerPagingRoutes(api)
	s.registerControlRoutes(api)
	s.registerKeepaliveRoutes(api)
	s.registerLogRoutes(api)
	s.registerMetricRoutes(api)
}

// Start blocks serving HTTP until shutdown.
func (s *AdminServer) Start() error {
	cfg := s.app.Config().Web
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	zap.L().Info("admin api listening", zap.String("addr", addr))
	err := s.root.Start(addr)
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the HTTP listener gracefully.
func (s *AdminServer) Shutdown(timeout time.Duration) {
	ctx, cancel := contextWithTimeout(timeout)
	defer cancel()
	if err := s.root.Shutdown(ctx); err != nil {
		zap.L().Warn("admin api shutdown", zap.Error(err))
	}
}
