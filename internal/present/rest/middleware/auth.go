package middleware

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"

	"github.com/aviary-social/aviary/internal/domain"
	"github.com/aviary-social/aviary/internal/present/rest/presenter"
	"github.com/aviary-social/aviary/internal/service"
)

var tracer = otel.Tracer("middleware")

// Authenticator verifies a bearer token and reports who signed it.
type Authenticator interface {
	VerifyServiceJWT(ctx context.Context, token string) (*service.AuthResult, error)
}

// Auth requires a valid service JWT and records the verified issuer,
// audience, and method binding on the request context. Which audience a
// route accepts is checked by its handler.
func Auth(authenticator Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, span := tracer.Start(c.Request().Context(), "Middleware.Auth")
			defer span.End()

			header := c.Request().Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				return presenter.AuthenticationRequired(c, "missing bearer token")
			}

			result, err := authenticator.VerifyServiceJWT(ctx, token)
			if err != nil {
				span.RecordError(err)
				return presenter.AuthenticationRequired(c, err.Error())
			}

			ctx = context.WithValue(ctx, domain.RequesterDidCtxKey, result.DID)
			ctx = context.WithValue(ctx, domain.RequesterAudCtxKey, result.Audience)
			ctx = context.WithValue(ctx, domain.RequesterLxmCtxKey, result.Lxm)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("requester", result.DID)

			return next(c)
		}
	}
}
