package routes

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/OFFIS-RIT/graphrag/internal/queue"
	"github.com/OFFIS-RIT/graphrag/internal/server/middleware"
	"github.com/OFFIS-RIT/graphrag/pkg/common"
	"github.com/OFFIS-RIT/graphrag/pkg/leaselock"
	"github.com/OFFIS-RIT/graphrag/pkg/logger"

	"github.com/labstack/echo/v4"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	defaultTopK = 10
	maxTopK     = 100
)

func badRequest(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
}

func internalError(c echo.Context) error {
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
}

// IndexGraphHandler enqueues an index job for the graph.
func IndexGraphHandler(c echo.Context) error {
	type indexGraphBody struct {
		GraphID  string   `param:"id" json:"-" validate:"required"`
		Dir      string   `json:"dir"`
		S3Prefix string   `json:"s3_prefix"`
		URLs     []string `json:"urls" validate:"dive,url"`
	}

	body := new(indexGraphBody)
	if err := c.Bind(body); err != nil {
		return badRequest(c)
	}
	if err := c.Validate(body); err != nil {
		return badRequest(c)
	}
	if body.Dir == "" && body.S3Prefix == "" && len(body.URLs) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "No input given"})
	}

	correlationID, err := gonanoid.New()
	if err != nil {
		return internalError(c)
	}
	msg := queue.IndexMessage{
		GraphID:       body.GraphID,
		CorrelationID: correlationID,
		Dir:           body.Dir,
		S3Prefix:      body.S3Prefix,
		URLs:          body.URLs,
	}
	ac := c.(*middleware.AppContext)
	if err := queue.EnqueueIndex(c.Request().Context(), ac.App.Queue, msg); err != nil {
		logger.Error("[Server] Failed to enqueue index job", "graph_id", body.GraphID, "err", err)
		return internalError(c)
	}

	return c.JSON(http.StatusAccepted, map[string]string{
		"graph_id":       body.GraphID,
		"correlation_id": correlationID,
	})
}

// SearchEntitiesHandler returns the entities most similar to ?q.
func SearchEntitiesHandler(c echo.Context) error {
	type searchEntitiesParams struct {
		GraphID string `param:"id" validate:"required"`
		Query   string `query:"q" validate:"required"`
		TopK    int    `query:"k" validate:"min=0,max=100"`
	}

	params := new(searchEntitiesParams)
	if err := c.Bind(params); err != nil {
		return badRequest(c)
	}
	if err := c.Validate(params); err != nil {
		return badRequest(c)
	}
	k := params.TopK
	if k == 0 {
		k = defaultTopK
	}
	k = min(k, maxTopK)

	graphs := c.(*middleware.AppContext).App.Graphs
	res, err := graphs.SearchEntities(c.Request().Context(), params.GraphID, params.Query, k)
	if err != nil {
		logger.Error("[Server] Entity search failed", "graph_id", params.GraphID, "err", err)
		return internalError(c)
	}
	if res == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Graph not found"})
	}
	return c.JSON(http.StatusOK, res)
}

// GetReportsHandler lists the community reports of a graph, optionally of
// one level.
func GetReportsHandler(c echo.Context) error {
	type getReportsParams struct {
		GraphID string `param:"id" validate:"required"`
		Level   string `query:"level" validate:"omitempty,numeric"`
	}

	params := new(getReportsParams)
	if err := c.Bind(params); err != nil {
		return badRequest(c)
	}
	if err := c.Validate(params); err != nil {
		return badRequest(c)
	}

	level := -1
	if params.Level != "" {
		n, err := strconv.Atoi(params.Level)
		if err != nil || n < 0 {
			return badRequest(c)
		}
		level = n
	}

	graphs := c.(*middleware.AppContext).App.Graphs
	reports, err := graphs.Tables().LoadReports(c.Request().Context(), params.GraphID)
	if err != nil {
		logger.Error("[Server] Failed to load reports", "graph_id", params.GraphID, "err", err)
		return internalError(c)
	}

	out := make([]common.CommunityReport, 0, len(reports))
	for _, r := range reports {
		if level < 0 || r.Level == level {
			out = append(out, r)
		}
	}
	return c.JSON(http.StatusOK, out)
}

// DeleteGraphHandler removes every persisted table of a graph. A graph that
// is being indexed answers 409.
func DeleteGraphHandler(c echo.Context) error {
	type deleteGraphParams struct {
		GraphID string `param:"id" validate:"required"`
	}

	params := new(deleteGraphParams)
	if err := c.Bind(params); err != nil {
		return badRequest(c)
	}
	if err := c.Validate(params); err != nil {
		return badRequest(c)
	}

	graphs := c.(*middleware.AppContext).App.Graphs
	err := graphs.DeleteGraph(c.Request().Context(), params.GraphID)
	switch {
	case errors.Is(err, leaselock.ErrBusy):
		return c.JSON(http.StatusConflict, map[string]string{"error": "Graph is being indexed"})
	case err != nil:
		logger.Error("[Server] Failed to delete graph", "graph_id", params.GraphID, "err", err)
		return internalError(c)
	}
	return c.NoContent(http.StatusNoContent)
}
