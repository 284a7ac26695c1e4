package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/jmehdipour/dbrelay/internal/deadletter"
	echo "github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type DeadLetterReplayer interface {
	Len(ctx context.Context) (int64, error)
	Replay(ctx context.Context, limit int) (deadletter.ReplayResult, error)
}

func deadLetterCountHandler(dl DeadLetterReplayer) echo.HandlerFunc {
	return func(c echo.Context) error {
		n, err := dl.Len(c.Request().Context())
		if err != nil {
			return c.JSON(http.StatusBadGateway, map[string]string{"error": "dead-letter store unavailable"})
		}
		return c.JSON(http.StatusOK, map[string]int64{"pending": n})
	}
}

func replayHandler(dl DeadLetterReplayer, log *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		limit := 100
		if v := c.QueryParam("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 || n > 10000 {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			}
			limit = n
		}

		res, err := dl.Replay(c.Request().Context(), limit)
		if err != nil {
			log.Error("dead-letter replay failed", zap.Error(err))
			return c.JSON(http.StatusBadGateway, map[string]any{"error": "replay failed", "replayed": res.Replayed})
		}
		return c.JSON(http.StatusOK, res)
	}
}
