package handler

import (
	"errors"
	"net/http"

	"vendor-service/internal/performance"

	"github.com/labstack/echo/v4"
)

// engineError maps performance engine errors to HTTP responses
func engineError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, performance.ErrVendorNotFound),
		errors.Is(err, performance.ErrOrderNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case errors.Is(err, performance.ErrInvalidTransition),
		errors.Is(err, performance.ErrInvalidState):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, performance.ErrValidation):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
