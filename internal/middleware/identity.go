package middleware

import (
	jwtPkg "SafeRoad/pkg/jwt"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type identityMiddleware struct {
	secretEnvKey string
}

func newIdentityMiddleware() *identityMiddleware {
	return &identityMiddleware{secretEnvKey: jwtPkg.AccessTokenSecret}
}

// NewIdentityMiddleware attaches the caller's identity when a valid bearer
// token is present. It never rejects a request: anonymous callers pass
// through without a user in locals.
func (m *middleware) NewIdentityMiddleware(ctx *fiber.Ctx) error {
	if ctx.Get(fiber.HeaderAuthorization) == "" {
		return ctx.Next()
	}

	token, err := jwtPkg.VerifyTokenHeader(ctx, m.identity.secretEnvKey)
	if err != nil {
		m.log.WithFields(logrus.Fields{
			"request_id": m.GetRequestID(ctx),
			"path":       ctx.Path(),
			"error":      err.Error(),
		}).Warn("Ignoring invalid access token")
		return ctx.Next()
	}

	user, err := jwtPkg.UserFromToken(token)
	if err != nil {
		m.log.WithFields(logrus.Fields{
			"request_id": m.GetRequestID(ctx),
			"error":      err.Error(),
		}).Warn("Ignoring access token without identity")
		return ctx.Next()
	}

	jwtPkg.SetUserLoginData(ctx, user)

	return ctx.Next()
}
