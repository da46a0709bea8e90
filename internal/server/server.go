package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/OFFIS-RIT/graphrag/internal/config"
	"github.com/OFFIS-RIT/graphrag/internal/indexer"
	"github.com/OFFIS-RIT/graphrag/internal/queue"
	mid "github.com/OFFIS-RIT/graphrag/internal/server/middleware"
	"github.com/OFFIS-RIT/graphrag/pkg/logger"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	return cv.validator.Struct(i)
}

// New returns the echo instance serving app.
func New(app *mid.App) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = &CustomValidator{validator: validator.New()}

	e.Use(mid.AppContextMiddleware(app))
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("1M"))

	RegisterRoutes(e)
	return e
}

// Run serves the API until ctx is done.
func Run(ctx context.Context, cfg *config.Config) error {
	svc, err := indexer.Setup(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	conn, err := queue.Dial(cfg.QueueURL)
	if err != nil {
		return err
	}
	defer conn.Close()
	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()
	if err := queue.SetupQueues(ch, []string{queue.IndexQueue}); err != nil {
		return err
	}

	app := &mid.App{
		Graphs:       svc.Indexer,
		Queue:        ch,
		MasterAPIKey: cfg.Server.MasterAPIKey,
	}
	if cfg.Server.AuthURL != "" {
		k, err := keyfunc.NewDefault([]string{cfg.Server.AuthURL + "/jwks"})
		if err != nil {
			return err
		}
		app.Keyfunc = k.Keyfunc
	}

	e := New(app)
	errCh := make(chan error, 1)
	go func() {
		logger.Info("[Server] Starting server", "port", cfg.Server.Port)
		if err := e.Start(":" + cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("[Server] Failed to shutdown server", "err", err)
	}
	return nil
}
