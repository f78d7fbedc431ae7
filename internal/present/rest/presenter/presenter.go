// Package presenter renders XRPC responses and error envelopes.
package presenter

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type errorEnvelope struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func OK(c echo.Context, body any) error {
	return c.JSON(http.StatusOK, body)
}

func InvalidRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, errorEnvelope{
		Error:   "InvalidRequest",
		Message: message,
	})
}

func AuthenticationRequired(c echo.Context, message string) error {
	return c.JSON(http.StatusUnauthorized, errorEnvelope{
		Error:   "AuthenticationRequired",
		Message: message,
	})
}

func Forbidden(c echo.Context, message string) error {
	return c.JSON(http.StatusForbidden, errorEnvelope{
		Error:   "Forbidden",
		Message: message,
	})
}

func NotFound(c echo.Context, message string) error {
	return c.JSON(http.StatusNotFound, errorEnvelope{
		Error:   "NotFound",
		Message: message,
	})
}

func InternalServerError(c echo.Context) error {
	return c.JSON(http.StatusInternalServerError, errorEnvelope{
		Error:   "InternalServerError",
		Message: "something went wrong",
	})
}
