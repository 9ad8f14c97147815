package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/wunderbyte/evasync/core"
)

// tokenLifetime bounds service tokens; the host platform mints a fresh one
// per session.
const tokenLifetime = 10 * time.Minute

var signingKey []byte

// Claims carries the host-service identity. Authentication is
// service-to-service: the booking platform signs requests with the shared
// secret, there are no end-user accounts here.
type Claims struct {
	jwt.StandardClaims
	Service string `json:"service,omitempty"`
}

// configureAuth sets the package signing key and returns the JWT middleware
// guarding the authed route groups.
func configureAuth(conf *core.Config) echo.MiddlewareFunc {
	signingKey = []byte(conf.SecretKey)
	return middleware.JWTWithConfig(middleware.JWTConfig{
		SigningKey:    signingKey,
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    "serviceToken",
		Claims:        new(Claims),
	})
}

// serviceToken extracts the verified claims set by the JWT middleware.
func serviceToken(ctx echo.Context) *Claims {
	if token, ok := ctx.Get("serviceToken").(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return claims
		}
	}
	return nil
}

// requireService rejects verified tokens that carry no service identity,
// e.g. tokens minted for another audience with the same secret.
func requireService(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if claims := serviceToken(ctx); claims == nil || claims.Service == "" {
			return errUnauthorized
		}
		return next(ctx)
	}
}

// GenerateToken signs a service token; used by the admin CLI and tests.
func GenerateToken(conf *core.Config, service string) (string, error) {
	now := time.Now()
	claims := &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   service,
			ExpiresAt: now.Add(tokenLifetime).Unix(),
			IssuedAt:  now.Unix(),
		},
		Service: service,
	}
	token := jwt.NewWithClaims(jwt.GetSigningMethod(middleware.AlgorithmHS256), claims)
	ss, err := token.SignedString([]byte(conf.SecretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}
