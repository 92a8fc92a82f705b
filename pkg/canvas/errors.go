package canvas

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrCanvasNotFound      = errors.New("canvas not found")
	ErrCanvasExists        = errors.New("canvas already exists")
	ErrInvalidToken        = errors.New("invalid token")
	ErrUnknownUser         = errors.New("unknown user")
	ErrOutOfBounds         = errors.New("coordinates out of bounds")
	ErrInvalidColorChannel = errors.New("invalid color channel")
	ErrRateLimited         = errors.New("rate limited")
)

// RateLimitedError carries the time left before the user may edit again.
type RateLimitedError struct {
	Wait time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: wait %.1f more seconds", e.Wait.Seconds())
}

func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}

// Code maps an error to the stable reason code reported to clients. Unknown errors map to
// "internal".
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCanvasNotFound):
		return "canvas_not_found"
	case errors.Is(err, ErrCanvasExists):
		return "canvas_exists"
	case errors.Is(err, ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, ErrUnknownUser):
		return "unknown_user"
	case errors.Is(err, ErrOutOfBounds):
		return "out_of_bounds"
	case errors.Is(err, ErrInvalidColorChannel):
		return "invalid_color_channel"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	default:
		return "internal"
	}
}
