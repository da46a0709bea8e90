package middleware

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const (
	PermissionGraphView   = "graph.view"
	PermissionGraphIndex  = "graph.index"
	PermissionGraphDelete = "graph.delete"
)

var allPermissions = []string{PermissionGraphView, PermissionGraphIndex, PermissionGraphDelete}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
}

// AuthMiddleware accepts the master API key or a JWT verified with the
// app's Keyfunc. Admins without explicit permissions get all of them.
func AuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ac := c.(*AppContext)
		token, ok := strings.CutPrefix(c.Request().Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			return unauthorized(c)
		}

		app := ac.App
		if app.MasterAPIKey != "" && subtle.ConstantTimeCompare([]byte(token), []byte(app.MasterAPIKey)) == 1 {
			ac.User = &AppUser{UserID: "master", Role: "admin", Permissions: allPermissions}
			return next(c)
		}
		if app.Keyfunc == nil {
			return unauthorized(c)
		}

		parsed, err := jwt.Parse(token, app.Keyfunc)
		if err != nil || !parsed.Valid {
			return unauthorized(c)
		}
		claims, ok := parsed.Claims.(jwt.MapClaims)
		if !ok {
			return unauthorized(c)
		}

		var userID string
		switch id := claims["id"].(type) {
		case string:
			userID = id
		case float64:
			userID = fmt.Sprintf("%.0f", id)
		default:
			sub, err := claims.GetSubject()
			if err != nil || sub == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid user ID"})
			}
			userID = sub
		}

		role := "user"
		if r, ok := claims["role"].(string); ok {
			role = r
		}
		var permissions []string
		if perms, ok := claims["permissions"].([]any); ok {
			for _, p := range perms {
				if s, ok := p.(string); ok {
					permissions = append(permissions, s)
				}
			}
		}
		if role == "admin" && len(permissions) == 0 {
			permissions = allPermissions
		}

		ac.User = &AppUser{UserID: userID, Role: role, Permissions: permissions}
		return next(c)
	}
}

func HasPermission(user *AppUser, permission string) bool {
	return user != nil && slices.Contains(user.Permissions, permission)
}

func RequirePermission(permission string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user := c.(*AppContext).User
			if user == nil {
				return unauthorized(c)
			}
			if !HasPermission(user, permission) {
				return c.JSON(http.StatusForbidden, map[string]string{"error": "Forbidden: missing permission " + permission})
			}
			return next(c)
		}
	}
}
