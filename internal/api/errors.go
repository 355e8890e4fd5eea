package api

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/v4lstream/internal/capture"
	"github.com/smazurov/v4lstream/internal/config"
	"github.com/smazurov/v4lstream/internal/devices"
	"github.com/smazurov/v4lstream/pkg/linuxav/v4l2"
)

// toHTTPError maps device, capture and store errors to status codes.
func toHTTPError(msg string, err error) error {
	switch {
	case errors.Is(err, devices.ErrNotFound), errors.Is(err, config.ErrProfileNotFound):
		return huma.Error404NotFound(msg, err)
	case errors.Is(err, v4l2.ErrDevice), errors.Is(err, v4l2.ErrResource):
		return huma.Error503ServiceUnavailable(msg, err)
	case errors.Is(err, capture.ErrTooManyFailures),
		errors.Is(err, v4l2.ErrIO),
		errors.Is(err, v4l2.ErrNoFrame),
		errors.Is(err, context.DeadlineExceeded):
		return huma.Error504GatewayTimeout(msg, err)
	default:
		return huma.Error500InternalServerError(msg, err)
	}
}
