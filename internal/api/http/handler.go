// Package http serves the broker's web surface: the client WebSocket, health, stats
// and Prometheus metrics.
package http

import (
	"context"
	"log/slog"
	"net/http"

	"query-broker/internal/api/ws"
	"query-broker/internal/broker"
	"query-broker/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// BrokerAPI is what the web handlers need from the broker.
type BrokerAPI interface {
	ws.SessionService
	Stats(ctx context.Context) broker.Stats
}

// Handler serves the broker's HTTP routes.
type Handler struct {
	service  BrokerAPI
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler creates the handler set.
func NewHandler(service BrokerAPI, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger.With("component", "http-handler"),
	}
}

// NewRouter builds the gin engine with middleware and every route registered.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(CORS())
	r.Use(Instrument())
	h.RegisterRoutes(r)
	return r
}

// RegisterRoutes registers the broker routes on r.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", h.Health)
	r.GET("/ws", h.WebSocket)
	r.GET("/api/v1/stats", h.Stats)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// WebSocket upgrades the request and runs the client session until it disconnects.
func (h *Handler) WebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := ws.NewClient(conn, h.service, h.logger)
	client.Run(context.WithoutCancel(c.Request.Context()))
}

// Health reports liveness plus a coarse view of the pool.
func (h *Handler) Health(c *gin.Context) {
	stats := h.service.Stats(c.Request.Context())
	idle := 0
	for _, w := range stats.Workers {
		if w.Status == domain.WorkerStatusIdle {
			idle++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"workers":      len(stats.Workers),
		"idle_workers": idle,
		"sessions":     stats.Sessions,
	})
}

// Stats returns the registry, queue length and active assignments.
func (h *Handler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Stats(c.Request.Context()))
}
