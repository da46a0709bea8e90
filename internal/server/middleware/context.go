package middleware

import (
	"context"

	"github.com/OFFIS-RIT/graphrag/internal/queue"
	"github.com/OFFIS-RIT/graphrag/pkg/query"
	"github.com/OFFIS-RIT/graphrag/pkg/store"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// Graphs reads and deletes indexed graphs.
type Graphs interface {
	SearchEntities(ctx context.Context, graphID, q string, topK int) ([]query.SelectedEntity, error)
	DeleteGraph(ctx context.Context, graphID string) error
	Tables() store.TableStore
}

type AppUser struct {
	UserID      string
	Role        string
	Permissions []string
}

// App holds the dependencies shared by all handlers. Keyfunc may be nil,
// then only the master API key authenticates.
type App struct {
	Graphs       Graphs
	Queue        queue.Publisher
	Keyfunc      jwt.Keyfunc
	MasterAPIKey string
}

type AppContext struct {
	echo.Context
	App  *App
	User *AppUser
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			return next(&AppContext{Context: c, App: app})
		}
	}
}
