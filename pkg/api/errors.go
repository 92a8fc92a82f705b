package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/astromechza/pixelwar/pkg/canvas"
)

// errInvalidParameter marks malformed query parameters.
var errInvalidParameter = errors.New("invalid parameter")

type errorBody struct {
	Error       string   `json:"error"`
	Message     string   `json:"message"`
	WaitSeconds *float64 `json:"waitSeconds,omitempty"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, canvas.ErrCanvasNotFound):
		return http.StatusNotFound
	case errors.Is(err, canvas.ErrInvalidToken), errors.Is(err, canvas.ErrUnknownUser):
		return http.StatusForbidden
	case errors.Is(err, canvas.ErrOutOfBounds), errors.Is(err, canvas.ErrInvalidColorChannel), errors.Is(err, errInvalidParameter):
		return http.StatusBadRequest
	case errors.Is(err, canvas.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func codeFor(err error) string {
	if errors.Is(err, errInvalidParameter) {
		return "invalid_parameter"
	}
	return canvas.Code(err)
}

func writeJSON(writer http.ResponseWriter, status int, v interface{}) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	if err := json.NewEncoder(writer).Encode(v); err != nil {
		slog.Error("failed to write", "err", err)
	}
}

// writeError reports err to the client and marks span as failed.
func writeError(writer http.ResponseWriter, span trace.Span, err error) {
	status := statusFor(err)
	code := codeFor(err)
	body := errorBody{Error: code, Message: err.Error()}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "err", err)
		body.Message = "internal error"
	}

	var rl *canvas.RateLimitedError
	if errors.As(err, &rl) {
		wait := math.Ceil(rl.Wait.Seconds()*1000) / 1000
		body.WaitSeconds = &wait
		body.Message = fmt.Sprintf("you must wait %.1f more seconds before updating another pixel", rl.Wait.Seconds())
		writer.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(rl.Wait.Seconds()))))
	}

	if span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, code)
	}
	writeJSON(writer, status, body)
}
