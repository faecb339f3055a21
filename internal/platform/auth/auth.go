// Package auth extracts the acting user and tenant from bearer tokens and
// gates handlers by role. Session management and token issuance live outside
// this service; we only verify and read claims.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	ActorIDKey   contextKey = "actor_id"
	ActorNameKey contextKey = "actor_name"
	RolesKey     contextKey = "user_roles"
)

// Claims carries the identity fields this service consumes.
type Claims struct {
	jwt.RegisteredClaims
	TenantID string   `json:"tenant_id"`
	Name     string   `json:"name"`
	Roles    []string `json:"roles"`
}

// Middleware parses the Authorization bearer token, verifies its HMAC
// signature, and places actor id, name, roles, and the tenant claim into the
// request context. Requests without a valid token are rejected.
func Middleware(signingKey []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(strings.TrimPrefix(header, "Bearer "), claims,
				func(t *jwt.Token) (interface{}, error) {
					if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
						return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
					}
					return signingKey, nil
				})
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			if claims.Subject == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "token missing subject")
			}

			ctx := c.Request().Context()
			ctx = context.WithValue(ctx, ActorIDKey, claims.Subject)
			ctx = context.WithValue(ctx, ActorNameKey, claims.Name)
			ctx = context.WithValue(ctx, RolesKey, claims.Roles)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("actor_id", claims.Subject)
			c.Set("jwt_tenant_id", claims.TenantID)

			return next(c)
		}
	}
}

// RequireRole returns middleware that admits users holding any of the given
// roles. Admins pass every role gate.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userRoles := RolesFromContext(c.Request().Context())
			for _, required := range roles {
				for _, has := range userRoles {
					if has == required || has == "admin" {
						return next(c)
					}
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}

// ActorIDFromContext returns the acting user id, or uuid.Nil when absent or
// malformed.
func ActorIDFromContext(ctx context.Context) uuid.UUID {
	s, _ := ctx.Value(ActorIDKey).(string)
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil
	}
	return id
}

// RolesFromContext returns the acting user's roles.
func RolesFromContext(ctx context.Context) []string {
	roles, _ := ctx.Value(RolesKey).([]string)
	return roles
}
