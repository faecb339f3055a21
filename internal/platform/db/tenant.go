// Package db provides the Postgres connection pool, tenant context helpers,
// and the SQL-file migrator.
//
// Tenant isolation is enforced at the repository layer: every query against
// tenant-owned tables must filter on tenant_id (and is_deleted for
// soft-deleted aggregates). The helpers here carry the tenant identifier
// through request contexts so handlers never pass it in a request body.
package db

import (
	"context"
	"net/http"
	"regexp"

	"github.com/labstack/echo/v4"
)

type contextKey string

const TenantIDKey contextKey = "tenant_id"

var tenantIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidTenantID reports whether id is a well-formed tenant identifier.
func ValidTenantID(id string) bool {
	return id != "" && tenantIDPattern.MatchString(id)
}

// TenantMiddleware resolves the tenant identifier for the request, rejecting
// requests without one. Resolution order: JWT claim (set by auth middleware),
// then X-Tenant-ID header.
func TenantMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tenantID := extractTenantID(c)
			if !ValidTenantID(tenantID) {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid tenant identifier")
			}

			ctx := context.WithValue(c.Request().Context(), TenantIDKey, tenantID)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("tenant_id", tenantID)

			return next(c)
		}
	}
}

func extractTenantID(c echo.Context) string {
	if tid, ok := c.Get("jwt_tenant_id").(string); ok && tid != "" {
		return tid
	}
	return c.Request().Header.Get("X-Tenant-ID")
}

// TenantFromContext retrieves the tenant ID from context.
func TenantFromContext(ctx context.Context) string {
	tid, _ := ctx.Value(TenantIDKey).(string)
	return tid
}
