// Package proxy 实现 posture-proxy：设备端通过它写入 feed，凭据只保存在服务端
package proxy

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/aryaprasad08/slouch/internal/publish"
	"github.com/aryaprasad08/slouch/internal/repository"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var knownFeeds = map[string]bool{
	publish.FeedAngle:  true,
	publish.FeedStatus: true,
	publish.FeedCount:  true,
}

type feedValueRequest struct {
	Value string `json:"value"`
}

// Handler feed 代理 HTTP 处理器
type Handler struct {
	sink         FeedSink
	logger       *zap.Logger
	writeTimeout time.Duration
}

// NewHandler 创建处理器；writeTimeout 为转发到 sink 的超时
func NewHandler(sink FeedSink, writeTimeout time.Duration, logger *zap.Logger) *Handler {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &Handler{sink: sink, logger: logger, writeTimeout: writeTimeout}
}

// NewRouter 创建路由
func NewRouter(h *Handler, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	r.GET("/health", h.Health)
	feeds := r.Group("/feeds")
	{
		feeds.POST("/:feed", h.WriteFeed)
		feeds.GET("/:feed/data", h.ListFeed)
		feeds.GET("/:feed/data/last", h.LatestFeed)
	}
	return r
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func respondError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// Health GET /health
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// WriteFeed POST /feeds/:feed
func (h *Handler) WriteFeed(c *gin.Context) {
	feed := c.Param("feed")
	if !knownFeeds[feed] {
		respondError(c, http.StatusNotFound, "unknown feed")
		return
	}

	var req feedValueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request format")
		return
	}
	if req.Value == "" {
		respondError(c, http.StatusBadRequest, "value is required")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.writeTimeout)
	defer cancel()

	if err := h.sink.Write(ctx, feed, req.Value); err != nil {
		status := statusForKind(publish.KindOf(err))
		h.logger.Warn("Failed to forward feed value",
			zap.String("feed", feed),
			zap.Int("status", status),
			zap.Error(err),
		)
		respondError(c, status, publish.KindOf(err).Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"feed": feed, "value": req.Value})
}

// ListFeed GET /feeds/:feed/data?limit=N
func (h *Handler) ListFeed(c *gin.Context) {
	reader, feed, ok := h.reader(c)
	if !ok {
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 || limit > 1000 {
		respondError(c, http.StatusBadRequest, "limit must be between 1 and 1000")
		return
	}

	points, err := reader.List(c.Request.Context(), feed, limit)
	if err != nil {
		h.logger.Error("Failed to list feed data", zap.String("feed", feed), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "failed to list feed data")
		return
	}
	c.JSON(http.StatusOK, gin.H{"feed": feed, "data": points})
}

// LatestFeed GET /feeds/:feed/data/last
func (h *Handler) LatestFeed(c *gin.Context) {
	reader, feed, ok := h.reader(c)
	if !ok {
		return
	}

	point, err := reader.Latest(c.Request.Context(), feed)
	if errors.Is(err, repository.ErrNotFound) {
		respondError(c, http.StatusNotFound, "no data")
		return
	}
	if err != nil {
		h.logger.Error("Failed to read latest feed data", zap.String("feed", feed), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "failed to read feed data")
		return
	}
	c.JSON(http.StatusOK, point)
}

func (h *Handler) reader(c *gin.Context) (FeedReader, string, bool) {
	feed := c.Param("feed")
	if !knownFeeds[feed] {
		respondError(c, http.StatusNotFound, "unknown feed")
		return nil, "", false
	}
	reader, ok := h.sink.(FeedReader)
	if !ok {
		respondError(c, http.StatusNotImplemented, "sink does not support reads")
		return nil, "", false
	}
	return reader, feed, true
}

// statusForKind 与 transport.classifyStatus 互逆
func statusForKind(kind error) int {
	switch {
	case errors.Is(kind, publish.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(kind, publish.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusBadGateway
	}
}
