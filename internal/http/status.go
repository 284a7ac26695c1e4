package http

import (
	"net/http"

	echo "github.com/labstack/echo/v4"
)

// StatusSource is assembled by the serve command from the live relays.
type StatusSource interface {
	Status() Status
}

type Status struct {
	TriggerPending        int               `json:"trigger_pending"`
	UpsertPending         int               `json:"upsert_pending"`
	ConfirmationsInFlight int64             `json:"confirmations_in_flight"`
	Topics                []string          `json:"topics"`
	Breakers              map[string]string `json:"breakers,omitempty"`
}

func statusHandler(src StatusSource) echo.HandlerFunc {
	return func(c echo.Context) error {
		st := src.Status()
		if st.Topics == nil {
			st.Topics = []string{}
		}
		return c.JSON(http.StatusOK, st)
	}
}
