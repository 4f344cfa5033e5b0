package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	marketsync "github.com/goliatone/go-marketsync"
	"github.com/goliatone/go-marketsync/core"
)

const (
	readTimeout     = 15 * time.Second
	writeTimeout    = 60 * time.Second
	idleTimeout     = 60 * time.Second
	maxWebhookBytes = 1 << 20
)

// Server is the HTTP surface: the push endpoint, the shop connect flow,
// manual triggers and read-only inspection routes.
type Server struct {
	facade   *marketsync.Facade
	observer *core.Observer
	metrics  http.Handler
	router   *gin.Engine
	server   *http.Server
}

type Option func(*Server)

// WithMetricsHandler mounts h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

func WithObserver(observer *core.Observer) Option {
	return func(s *Server) {
		s.observer = observer
	}
}

func New(facade *marketsync.Facade, opts ...Option) (*Server, error) {
	if facade == nil || facade.Service() == nil {
		return nil, fmt.Errorf("httpapi: facade is required")
	}
	s := &Server{facade: facade}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.observer == nil {
		s.observer = facade.Service().Observer
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(requestLogger(s.observer))
	router.Use(recovery(s.observer))

	h := &handlers{facade: s.facade, observer: s.observer}

	webhookPath := s.facade.Service().Config.Webhook.Path
	if strings.TrimSpace(webhookPath) == "" {
		webhookPath = core.DefaultConfig().Webhook.Path
	}
	router.GET(webhookPath, h.webhookPing)
	router.POST(webhookPath, h.webhook)

	auth := router.Group("/auth/shopee")
	{
		auth.GET("/url", h.authorizationURL)
		auth.GET("/callback", h.authorizationCallback)
	}

	sync := router.Group("/sync")
	{
		sync.POST("/:shop_id/:kind", h.syncKind)
		sync.POST("/:shop_id/:kind/:order_sn", h.refreshOrder)
		sync.GET("/:shop_id/cursor/:kind", h.syncCursor)
	}

	router.POST("/tokens/refresh", h.refreshTokens)
	router.GET("/shops", h.listShops)

	queue := router.Group("/queue")
	{
		queue.POST("", h.enqueue)
		queue.POST("/process", h.processQueue)
		queue.GET("/:id", h.queueItem)
	}

	router.GET("/webhooks/logs", h.webhookLogs)

	if s.metrics != nil {
		router.GET("/metrics", gin.WrapH(s.metrics))
	}
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return router
}

// Start blocks serving on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
	s.observer.Info(context.Background(), "http server listening", map[string]any{"addr": addr})
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
