package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/izukuuuu/opinion-system-sub001/backend/internal/evidence"
	"github.com/izukuuuu/opinion-system-sub001/backend/internal/graph"
	"github.com/izukuuuu/opinion-system-sub001/backend/internal/graphsync"
	"github.com/izukuuuu/opinion-system-sub001/backend/internal/outcome"
	"github.com/izukuuuu/opinion-system-sub001/backend/internal/services"
	"github.com/izukuuuu/opinion-system-sub001/backend/internal/topics"
	"github.com/izukuuuu/opinion-system-sub001/backend/pkg/config"
	apperrors "github.com/izukuuuu/opinion-system-sub001/backend/pkg/errors"
	"github.com/izukuuuu/opinion-system-sub001/backend/pkg/logger"
	"go.uber.org/zap"
)

const requestIDHeader = "X-Request-ID"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}

	// Initialize logger
	if err := logger.Init(cfg.Env); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting graph sync API server...")

	if !cfg.GraphConfigured() {
		log.Warn("NEO4J_URI is not set, sync requests will be skipped")
	}

	sm, err := services.NewServiceManager(cfg, services.Options{Logger: log})
	if err != nil {
		log.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer sm.Close(context.Background())

	// Setup Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := newRouter(sm, log)

	// Start server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	log.Info("Server started", zap.String("port", cfg.Port))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}

func newRouter(sm *services.ServiceManager, log *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(requestID())
	router.Use(ginLogger(log))
	router.Use(gin.Recovery())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":           "ok",
			"graph_configured": sm.Config().GraphConfigured(),
		})
	})

	api := router.Group("/api/graph")
	{
		// Relational tables -> Post/Account/Platform (+ enrichment)
		api.POST("/sync", func(c *gin.Context) {
			var req graphsync.Request
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			respond(c, sm.Sync(c.Request.Context(), req))
		})

		// Clustering artifacts -> topic hierarchy
		api.POST("/topics/sync", func(c *gin.Context) {
			var req topics.Request
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			respond(c, sm.SyncTopics(c.Request.Context(), req))
		})

		api.POST("/rebuild", func(c *gin.Context) {
			var req services.RebuildRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			res := sm.Rebuild(c.Request.Context(), req)
			status := statusCode(res.Base)
			if res.Base.IsOK() && res.Topics != nil && !res.Topics.IsOK() {
				status = statusCode(*res.Topics)
			}
			c.JSON(status, gin.H{"status": res.Status(), "result": res})
		})

		api.POST("/schema", func(c *gin.Context) {
			respond(c, sm.BootstrapSchema(c.Request.Context()))
		})

		api.POST("/source-docs", func(c *gin.Context) {
			var doc graph.SourceDoc
			if err := c.ShouldBindJSON(&doc); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			if err := sm.UpsertSourceDoc(c.Request.Context(), doc); err != nil {
				respondError(c, log, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"status": outcome.StatusOK, "id": doc.ID})
		})

		api.POST("/claims", func(c *gin.Context) {
			var req struct {
				PostID string `json:"post_id"`
				Topic  string `json:"topic"`
				evidence.Assertion
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			claimID, err := sm.AssertClaim(c.Request.Context(), req.PostID, req.Topic, req.Assertion)
			if err != nil {
				respondError(c, log, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"status": outcome.StatusOK, "id": claimID})
		})

		api.POST("/claims/:id/links", func(c *gin.Context) {
			var req struct {
				DocID    string `json:"doc_id" binding:"required"`
				Relation string `json:"relation" binding:"required"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			linked, err := sm.LinkClaim(c.Request.Context(), c.Param("id"), req.DocID, req.Relation)
			if err != nil {
				respondError(c, log, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"status": outcome.StatusOK, "linked": linked})
		})
	}

	return router
}

// respond writes an outcome with the status code its tag maps to
func respond(c *gin.Context, res outcome.Outcome) {
	c.JSON(statusCode(res), res)
}

func respondError(c *gin.Context, log *zap.Logger, err error) {
	res := outcome.FromError(err)
	status := statusCode(res)
	if status >= http.StatusInternalServerError {
		log.Error("Request failed",
			zap.String("request_id", c.GetString(requestIDHeader)),
			zap.Error(err),
		)
	}
	c.JSON(status, res)
}

// statusCode maps outcomes to HTTP: ok and skipped are 200, errors follow the taxonomy
func statusCode(res outcome.Outcome) int {
	switch res.Status {
	case outcome.StatusOK, outcome.StatusSkipped:
		return http.StatusOK
	}
	switch {
	case errors.Is(res.Err, services.ErrSyncInProgress):
		return http.StatusConflict
	case apperrors.IsErrorType(res.Err, apperrors.ErrorTypeValidation):
		return http.StatusBadRequest
	case apperrors.IsErrorType(res.Err, apperrors.ErrorTypeArtifact):
		return http.StatusNotFound
	case apperrors.IsErrorType(res.Err, apperrors.ErrorTypeGraph),
		apperrors.IsErrorType(res.Err, apperrors.ErrorTypeSource):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// requestID tags every request with an id, reusing the caller's when present
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDHeader, id)
		c.Writer.Header().Set(requestIDHeader, id)
		c.Next()
	}
}

// ginLogger is a custom logger middleware for Gin
func ginLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Info("HTTP Request",
			zap.String("request_id", c.GetString(requestIDHeader)),
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}
