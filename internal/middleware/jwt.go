package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"reliefops/internal/common"
	"reliefops/internal/models"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// ActorClaims are the bearer token claims used for audit attribution.
// The subject is the actor; Role is operator or admin.
type ActorClaims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// JWTAuth verifies bearer tokens and puts the actor, role and client host on
// the request context.
type JWTAuth struct {
	secret []byte
	jwks   *keyfunc.JWKS
	logger *zap.Logger
}

// NewJWTAuth verifies with the JWKS at jwksURL when set, otherwise with the HMAC secret.
func NewJWTAuth(secret, jwksURL string, logger *zap.Logger) (*JWTAuth, error) {
	auth := &JWTAuth{secret: []byte(secret), logger: logger}
	if jwksURL != "" {
		jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
			RefreshInterval:   time.Hour,
			RefreshUnknownKID: true,
			RefreshErrorHandler: func(err error) {
				logger.Warn("jwks refresh failed", zap.String("url", jwksURL), zap.Error(err))
			},
		})
		if err != nil {
			return nil, err
		}
		auth.jwks = jwks
		return auth, nil
	}
	if secret == "" {
		return nil, errors.New("jwt secret or jwks url is required")
	}
	return auth, nil
}

// Close stops the JWKS background refresh.
func (a *JWTAuth) Close() {
	if a.jwks != nil {
		a.jwks.EndBackground()
	}
}

func (a *JWTAuth) keyFunc(token *jwt.Token) (interface{}, error) {
	if a.jwks != nil {
		return a.jwks.Keyfunc(token)
	}
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, errors.New("unexpected signing method")
	}
	return a.secret, nil
}

// Middleware returns the echo-jwt middleware.
func (a *JWTAuth) Middleware() echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return new(ActorClaims)
		},
		KeyFunc: a.keyFunc,
		SuccessHandler: func(c echo.Context) {
			token, ok := c.Get("user").(*jwt.Token)
			if !ok {
				return
			}
			claims, ok := token.Claims.(*ActorClaims)
			if !ok {
				return
			}
			c.SetRequest(c.Request().WithContext(WithActor(c.Request().Context(), claims.Subject, claims.Role, c.RealIP())))
		},
		ErrorHandler: func(c echo.Context, err error) error {
			a.logger.Debug("bearer token rejected", zap.Error(err))
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token")
		},
	})
}

// WithActor stores attribution on ctx. Unknown roles fall back to operator.
func WithActor(ctx context.Context, actor, role, clientHost string) context.Context {
	if role != models.RoleAdmin {
		role = models.RoleOperator
	}
	ctx = context.WithValue(ctx, common.ActorKey, actor)
	ctx = context.WithValue(ctx, common.RoleKey, role)
	return context.WithValue(ctx, common.ClientHostKey, clientHost)
}

// RequireActor rejects requests that reached a handler without an authenticated subject.
func RequireActor() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if actor, ok := common.ActorFromContext(c.Request().Context()); !ok || actor == "" {
				return common.SendUnauthorizedError(c)
			}
			return next(c)
		}
	}
}
