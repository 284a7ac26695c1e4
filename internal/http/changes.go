package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/jmehdipour/dbrelay/internal/service/notify"
	echo "github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Emitter is satisfied by *notify.Service.
type Emitter interface {
	Emit(ctx context.Context, channel string, change []byte) (int64, error)
}

type emitReq struct {
	Channel string          `json:"channel"`
	Change  json.RawMessage `json:"change"`
}

// emitChangeHandler writes a change row plus its trigger notification, so the
// change reaches the channel topic through the normal relay path.
func emitChangeHandler(em Emitter, log *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req emitReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		req.Channel = strings.TrimSpace(req.Channel)
		if req.Channel == "" || len(req.Change) == 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "channel and change are required"})
		}

		uid, err := em.Emit(c.Request().Context(), req.Channel, req.Change)
		if err != nil {
			if errors.Is(err, notify.ErrInvalidChange) {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "change must be JSON"})
			}

			log.Error("emit change failed", zap.String("channel", req.Channel), zap.Error(err))

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		return c.JSON(http.StatusAccepted, map[string]any{
			"emitted": true,
			"uid":     uid,
			"channel": req.Channel,
		})
	}
}
