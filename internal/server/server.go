package server

import (
	"context"
	"net/http"
	"time"

	"veilswap/internal/models"
	"veilswap/internal/order"
	"veilswap/internal/store"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Server exposes the synchronous API: place orders, initiate bridge
// operations, query state. Everything asynchronous happens in the workers.
type Server struct {
	orderSvc   *order.Service
	dbService  store.LedgerStore
	router     *gin.Engine
	httpServer *http.Server
}

func New(cfg models.ServerConfig, orderSvc *order.Service, dbService store.LedgerStore) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		orderSvc:  orderSvc,
		dbService: dbService,
		router:    gin.New(),
	}
	s.router.Use(gin.Recovery())
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  20 * time.Second,
		WriteTimeout: 20 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.health)

	v1 := s.router.Group("/v1")
	v1.Use(walletIdentity())
	{
		v1.POST("/orders", s.placeOrder)
		v1.GET("/orders/:ref", s.getOrder)
		v1.GET("/balance", s.getBalance)
		v1.GET("/holdings", s.listHoldings)
		v1.POST("/deposits", s.initiateDeposit)
		v1.POST("/withdrawals", s.initiateWithdrawal)
		v1.GET("/operations/:ref", s.getOperation)
	}
}

// Start begins serving; it returns immediately.
func (s *Server) Start() {
	zap.L().Info("Starting API server", zap.String("addr", s.httpServer.Addr))
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zap.L().Fatal("Failed to start API server", zap.Error(err))
		}
	}()
}

// Stop drains in-flight requests and shuts the server down.
func (s *Server) Stop(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		zap.L().Error("API server forced to shutdown", zap.Error(err))
		return
	}
	zap.L().Info("API server stopped")
}

// walletIdentity resolves the calling wallet from the request. Authentication
// proper lives at the edge; the engine trusts the forwarded wallet header.
func walletIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		walletId := c.GetHeader("X-Wallet-Id")
		if walletId == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing X-Wallet-Id header"})
			return
		}
		c.Set("wallet_id", walletId)
		c.Next()
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "veilswap",
		"timestamp": time.Now().UTC(),
	})
}
