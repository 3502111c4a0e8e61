package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/gregLibert/emv-reader/internal/config"
	"github.com/gregLibert/emv-reader/internal/hub"
)

type Server struct {
	echo    *echo.Echo
	config  *config.Config
	handler *Handler
}

func NewServer(cfg *config.Config, h *hub.Hub, transactions Transactions) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	handler := NewHandler(h, transactions)

	// Routes
	e.GET("/health", handler.HealthCheck)
	e.GET("/ws", handler.WebSocketHandler)
	e.POST("/transactions", handler.ArmTransaction)
	e.GET("/transactions/current", handler.CurrentTransaction)
	e.DELETE("/transactions/current", handler.CancelTransaction)

	return &Server{
		echo:    e,
		config:  cfg,
		handler: handler,
	}
}

// Start serves until Shutdown. It never returns http.ErrServerClosed.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Server.Port)
	log.Printf("Starting server on %s", addr)

	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ServeHTTP lets tests drive the routes without a listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
