// Package services implements the operations behind the HTTP surface:
// hazard listing, route checks, community reports, accounts, and feed
// health. Services depend on narrow store interfaces so tests can run
// them against fakes instead of a database.
package services

import (
	"context"
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/roadpulse/server/internal/cache"
	"github.com/roadpulse/server/internal/errcode"
)

// UsageStore appends analytics events. Append failures are logged and
// swallowed; usage is never worth failing a request over.
type UsageStore interface {
	Append(ctx context.Context, eventType string, metadata map[string]any, userID string) error
}

// validate is shared across services. Error messages name fields by their
// json tag so they match what the client actually sent.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// invalidInput converts a validation failure into the client-facing error
// envelope, naming the first offending field.
func invalidInput(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		code := errcode.BadRequest
		if fe.Tag() == "required" {
			code = errcode.MissingFields
		}
		return errcode.Newf(code, "invalid field %s", fe.Field()).
			WithDetails(map[string]any{"field": fe.Field(), "rule": fe.Tag()})
	}
	return errcode.Wrap(errcode.BadRequest, "invalid request", err)
}

// rateLimited builds the limit-exceeded error with a retry hint when the
// gate knows one.
func rateLimited(msg string, d cache.Decision) error {
	e := errcode.New(errcode.RateLimited, msg)
	if d.RetryAfter > 0 {
		return e.WithDetails(map[string]any{"retryAfter": int(d.RetryAfter.Seconds())})
	}
	return e
}

func recordUsage(ctx context.Context, logger *zap.Logger, usage UsageStore, eventType string, md map[string]any, userID string) {
	if usage == nil {
		return
	}
	if err := usage.Append(ctx, eventType, md, userID); err != nil {
		logger.Warn("usage append failed", zap.String("event", eventType), zap.Error(err))
	}
}
