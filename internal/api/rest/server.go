package rest

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hzvision/cutvision/internal/api/websocket"
	"github.com/hzvision/cutvision/internal/config"
	"github.com/hzvision/cutvision/internal/supervisor"
	"go.uber.org/zap"
)

// Server exposes the observational status surface plus start/stop control.
// It is a collaborator of the core, the workers never see it.
type Server struct {
	router *gin.Engine
	sup    *supervisor.Supervisor
	logger *zap.Logger
	server *http.Server
	wsHub  *websocket.Hub
}

func NewServer(cfg *config.Config, sup *supervisor.Supervisor, logger *zap.Logger, wsHub *websocket.Hub) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router: gin.New(),
		sup:    sup,
		logger: logger,
		wsHub:  wsHub,
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) Start() error {
	s.logger.Info("Starting REST API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Fatal("REST server failed", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down REST API server")
	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(LoggerMiddleware(s.logger))
	s.router.Use(CORSMiddleware())

	s.router.GET("/health", s.healthCheck)

	// API v1
	v1 := s.router.Group("/api/v1")
	{
		system := v1.Group("/system")
		{
			system.GET("/status", s.getSystemStatus)
			system.POST("/start", s.startSystem)
			system.POST("/stop", s.stopSystem)
		}

		cams := v1.Group("/cameras")
		{
			cams.GET("", s.listCameras)
			cams.GET("/:id", s.getCamera)
		}

		ws := v1.Group("/ws")
		{
			ws.GET("/live", s.wsLiveConnection)
		}
	}
}

// Health check (public)
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) getSystemStatus(c *gin.Context) {
	statuses := s.sup.Status()

	c.JSON(http.StatusOK, gin.H{
		"running":      s.sup.Running(),
		"plc_state":    string(s.sup.ConnectionState()),
		"camera_count": len(statuses),
		"cameras":      statuses,
	})
}

func (s *Server) startSystem(c *gin.Context) {
	if err := s.sup.Start(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	s.broadcastSystemStatus()
	c.JSON(http.StatusOK, gin.H{"message": "started"})
}

func (s *Server) stopSystem(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	if err := s.sup.Stop(ctx); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	s.broadcastSystemStatus()
	c.JSON(http.StatusOK, gin.H{"message": "stopped"})
}

func (s *Server) broadcastSystemStatus() {
	s.wsHub.Broadcast(websocket.NewSystemStatusMessage(
		s.sup.Running(),
		len(s.sup.Status()),
		string(s.sup.ConnectionState())))
}

func (s *Server) listCameras(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"cameras": s.sup.Status()})
}

func (s *Server) getCamera(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid camera id"})
		return
	}

	for _, status := range s.sup.Status() {
		if status.CameraID == id {
			c.JSON(http.StatusOK, status)
			return
		}
	}

	c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("camera %d not found", id)})
}

// WebSocket handlers
func (s *Server) wsLiveConnection(c *gin.Context) {
	websocket.ServeWs(s.wsHub, c.Writer, c.Request)
}
