package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/taleweave/memoryd/pkg/apierr"
)

// httpErrorHandler maps apierr.Kind to an HTTP status once, at the edge
// (spec §6.7), mirrored on the teacher's errors.go / middleware centralization.
func httpErrorHandler(err error, c *echo.Context) {
	var herr *echo.HTTPError
	if errors.As(err, &herr) {
		_ = c.JSON(herr.Code, map[string]string{"error": httpMessage(herr.Message)})
		return
	}

	var aerr *apierr.Error
	message := err.Error()
	if errors.As(err, &aerr) {
		message = aerr.Message
	}

	status := statusForKind(apierr.KindOf(err))
	if status == http.StatusInternalServerError {
		slog.Error("api: unhandled error", "error", err)
		message = "internal server error"
	}
	_ = c.JSON(status, map[string]string{"error": message})
}

func statusForKind(kind apierr.Kind) int {
	switch kind {
	case apierr.KindNotFound:
		return http.StatusNotFound
	case apierr.KindForbidden:
		return http.StatusForbidden
	case apierr.KindBadRequest:
		return http.StatusBadRequest
	case apierr.KindConflict:
		return http.StatusConflict
	case apierr.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func httpMessage(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return "request failed"
}
