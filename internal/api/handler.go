package api

import (
	"errors"
	"log"
	"net/http"

	gorilla "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/gregLibert/emv-reader/internal/agent"
	"github.com/gregLibert/emv-reader/internal/hub"
)

// Transactions is the part of the agent driven over HTTP.
type Transactions interface {
	Arm(amount int64) (agent.Transaction, error)
	Current() (agent.Transaction, bool)
	Cancel() bool
}

type Handler struct {
	hub          *hub.Hub
	transactions Transactions
	upgrader     gorilla.Upgrader
}

type armRequest struct {
	// Amount in minor units.
	Amount int64 `json:"amount"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewHandler(h *hub.Hub, transactions Transactions) *Handler {
	return &Handler{
		hub:          h,
		transactions: transactions,
		upgrader: gorilla.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Allow connections from any origin
				return true
			},
		},
	}
}

func (h *Handler) WebSocketHandler(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return err
	}

	client, err := h.hub.RegisterClient(conn)
	if err != nil {
		log.Printf("WebSocket register error: %v", err)
		return conn.Close()
	}

	go client.WritePump()
	go client.ReadPump()

	return nil
}

func (h *Handler) HealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "EMV Card Reader",
		"clients": h.hub.ClientCount(),
	})
}

// ArmTransaction registers the amount of the next card read.
func (h *Handler) ArmTransaction(c echo.Context) error {
	var req armRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}

	tx, err := h.transactions.Arm(req.Amount)
	switch {
	case errors.Is(err, agent.ErrInvalidAmount):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, agent.ErrTransactionPending):
		return c.JSON(http.StatusConflict, errorResponse{Error: err.Error()})
	case err != nil:
		return err
	}
	return c.JSON(http.StatusCreated, tx)
}

func (h *Handler) CurrentTransaction(c echo.Context) error {
	tx, ok := h.transactions.Current()
	if !ok {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "no pending transaction"})
	}
	return c.JSON(http.StatusOK, tx)
}

func (h *Handler) CancelTransaction(c echo.Context) error {
	if !h.transactions.Cancel() {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "no pending transaction"})
	}
	return c.NoContent(http.StatusNoContent)
}
