package adminapi

import (
	"crypto/subtle"
	"net/http"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type loginPayload struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (s *AdminServer) login(c echo.Context) error {
	var payload loginPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse login parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	cfg := s.app.Config().Web
	userOk := subtle.ConstantTimeCompare([]byte(payload.Username), []byte(cfg.AdminUser)) == 1
	pwdOk := subtle.ConstantTimeCompare([]byte(payload.Password), []byte(cfg.AdminPwd)) == 1
	if !userOk || !pwdOk {
		zap.L().Warn("admin login rejected",
			zap.String("username", payload.Username),
			zap.String("remote", c.RealIP()))
		return fail(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid username or password", nil)
	}

	expire := cfg.JwtExpire
	if expire <= 0 {
		expire = 24
	}
	claims := jwt.MapClaims{
		"sub": payload.Username,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Duration(expire) * time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(cfg.Secret))
	if err != nil {
		return fail(c, http.StatusInternalServerError, "TOKEN_ERROR", "Failed to issue token", err.Error())
	}

	zap.L().Info("admin login accepted", zap.String("username", payload.Username))
	return ok(c, echo.Map{
		"token":      signed,
		"expires_in": expire * 3600,
	})
}
