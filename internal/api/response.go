package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"contenthub/backend/internal/logging"
	"contenthub/backend/internal/services"
)

// Response is the envelope returned by every endpoint.
type Response[T any] struct {
	Success bool   `json:"success"`
	Data    *T     `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func ok[T any](c echo.Context, data T, message string) error {
	return c.JSON(http.StatusOK, Response[T]{Success: true, Data: &data, Message: message})
}

func fail(c echo.Context, status int, message string) error {
	return c.JSON(status, Response[struct{}]{Success: false, Error: message})
}

// errorStatus maps a service error onto one HTTP status and a message that is safe
// to return. Unexpected errors get a generic message; the caller logs the detail.
func errorStatus(err error, fallback string) (int, string) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, services.ErrInvalidArgument), errors.Is(err, services.ErrNoSources):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, services.ErrServiceNotConfigured):
		return http.StatusServiceUnavailable, err.Error()
	}
	return http.StatusInternalServerError, fallback
}

// ErrorHandler renders echo errors (unknown routes, bind failures, panics) in the envelope.
func ErrorHandler(logger *logging.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status := http.StatusInternalServerError
		message := "internal server error"
		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			if m, isString := he.Message.(string); isString {
				message = m
			} else {
				message = http.StatusText(status)
			}
		} else {
			logger.Error("unhandled error", "path", c.Path(), "error", err)
		}
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = fail(c, status, message)
		}
		if err != nil {
			logger.Error("failed to write error response", "error", err)
		}
	}
}
