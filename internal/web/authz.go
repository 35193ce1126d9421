package web

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Permissions gating the API surface.
const (
	PermRead   = "verifications:read"
	PermManage = "verifications:manage"
)

// rolePermissions is the static role grant table. The caller's role arrives
// on the X-Role header from the authenticating front end; this service only
// enforces the mapping.
var rolePermissions = map[string][]string{
	"admin":          {PermRead, PermManage},
	"office_manager": {PermRead, PermManage},
	"dentist":        {PermRead},
	"hygienist":      {PermRead},
	"front_desk":     {PermRead},
}

// HasPermission reports whether the role grants the permission.
func HasPermission(role, permission string) bool {
	for _, granted := range rolePermissions[role] {
		if granted == permission {
			return true
		}
	}
	return false
}

// requirePermission rejects requests whose X-Role header does not grant the
// permission.
func requirePermission(permission string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role := c.Request().Header.Get("X-Role")
			if role == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing X-Role header")
			}
			if !HasPermission(role, permission) {
				return echo.NewHTTPError(http.StatusForbidden, "role does not permit this operation")
			}
			return next(c)
		}
	}
}
