package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-booking/internal/flash"
)

// FlashPopper returns and clears a user's pending messages.
type FlashPopper interface {
	Pop(ctx context.Context, userID uint64) ([]flash.Message, error)
}

// FlashHandler serves GET /v1/flash.
type FlashHandler struct {
	Responder
	Store FlashPopper
}

func NewFlashHandler(s FlashPopper, r Responder) *FlashHandler {
	return &FlashHandler{Responder: r, Store: s}
}

// Pop returns the caller's pending messages.  Each message is returned
// once.
func (h *FlashHandler) Pop(c echo.Context) error {
	id, err := caller(c)
	if err != nil {
		return h.fail(c, err)
	}
	msgs, err := h.Store.Pop(c.Request().Context(), id.UserID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"messages": msgs})
}
