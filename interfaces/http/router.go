package httpiface

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	appchat "github.com/VozVule/local-knowledge/application/chat"
	"github.com/VozVule/local-knowledge/domain/catalog"
	"github.com/VozVule/local-knowledge/domain/chat"
	"github.com/VozVule/local-knowledge/domain/document"
	"github.com/VozVule/local-knowledge/domain/persistence"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type ChatService interface {
	SendMessage(ctx context.Context, sessionID, text string) (*appchat.Reply, error)
	History(ctx context.Context, sessionID string) ([]*persistence.MessageRecord, error)
	ListModelConfig(ctx context.Context) ([]*persistence.AppConfig, error)
	Reconfigure(ctx context.Context, provider, model string) (chat.Descriptor, error)
	Active() (chat.Descriptor, bool)
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type DocumentService interface {
	Upload(ctx context.Context, upload *document.Upload) (*persistence.Document, error)
	List(ctx context.Context) ([]*persistence.Document, error)
	Delete(ctx context.Context, id uint) error
}

type Router struct {
	service     ChatService
	documents   DocumentService
	corsOrigins []string
	dbManager   persistence.DatabaseManager
	processor   persistence.EventProcessor
	exchanges   persistence.ExchangeRepository
}

func NewRouter(service ChatService, documents DocumentService, corsOrigins []string) *Router {
	return &Router{
		service:     service,
		documents:   documents,
		corsOrigins: corsOrigins,
	}
}

// NewRouterWithPersistence creates a router that also reports storage health and exchange metrics
func NewRouterWithPersistence(
	service ChatService,
	documents DocumentService,
	corsOrigins []string,
	dbManager persistence.DatabaseManager,
	processor persistence.EventProcessor,
	exchanges persistence.ExchangeRepository,
) *Router {
	return &Router{
		service:     service,
		documents:   documents,
		corsOrigins: corsOrigins,
		dbManager:   dbManager,
		processor:   processor,
		exchanges:   exchanges,
	}
}

func (r *Router) SetupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(r.corsMiddleware())

	// Health endpoints
	router.GET("/live", r.liveness)
	router.GET("/ready", r.readiness)
	router.GET("/health", r.healthCheck)

	api := router.Group("/api")
	api.Use(r.requestIDMiddleware())
	api.POST("/chat", r.sendChatMessage)
	api.GET("/chat/:session_id", r.getChatHistory)
	api.GET("/config/llm", r.getLLMConfig)
	api.POST("/config/llm", r.setLLMConfig)
	api.GET("/config/llm/active", r.getActiveLLM)
	api.POST("/embed", r.embed)

	if r.documents != nil {
		api.POST("/documents", r.createDocument)
		api.GET("/documents", r.listDocuments)
		api.DELETE("/documents/:id", r.deleteDocument)
	}

	if r.exchanges != nil {
		router.GET("/metrics", r.getAggregatedMetrics)
	}

	return router
}

func (r *Router) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqOrigin := c.GetHeader("Origin")
		if reqOrigin == "" {
			c.Header("Access-Control-Allow-Origin", strings.Join(r.corsOrigins, ", "))
		} else {
			allowOrigin := ""
			if len(r.corsOrigins) == 1 && r.corsOrigins[0] == "*" {
				allowOrigin = "*"
			} else {
				for _, allowed := range r.corsOrigins {
					if allowed == reqOrigin {
						allowOrigin = reqOrigin
						break
					}
				}
			}
			if allowOrigin != "" {
				c.Header("Access-Control-Allow-Origin", allowOrigin)
			}
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// requestIDMiddleware echoes a client X-Request-ID or assigns a fresh one
func (r *Router) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader("X-Request-ID"))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)
		c.Set("request_id", requestID)
		c.Next()
	}
}

func requestLogger(c *gin.Context) *logrus.Entry {
	return logrus.WithField("request_id", c.GetString("request_id"))
}

func (r *Router) healthCheck(c *gin.Context) {
	checks := gin.H{
		"api": "ok",
	}

	overallOK := true

	if r.dbManager != nil {
		if err := r.dbManager.Health(c.Request.Context()); err != nil {
			checks["db"] = gin.H{"ok": false, "error": err.Error()}
			overallOK = false
		} else {
			checks["db"] = gin.H{"ok": true}
		}
	}

	if r.processor != nil {
		ph := r.processor.Health()
		checks["processor"] = ph
		if !ph.IsRunning {
			overallOK = false
		}
	}

	// no active adapter degrades health; history and config still work
	if active, ok := r.service.Active(); ok {
		checks["llm"] = gin.H{"ok": true, "provider": active.Provider, "model_name": active.Model}
	} else {
		checks["llm"] = gin.H{"ok": false, "error": "no active language model"}
		overallOK = false
	}

	status := "healthy"
	code := http.StatusOK
	if !overallOK {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "local-knowledge",
		"version":   "1.0.0",
		"checks":    checks,
	})
}

// liveness probe: process is up and serving HTTP
func (r *Router) liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// readiness probe: storage reachable and metrics workers running
func (r *Router) readiness(c *gin.Context) {
	checks := gin.H{}
	ready := true

	if r.dbManager != nil {
		if err := r.dbManager.Health(c.Request.Context()); err != nil {
			checks["db"] = gin.H{"ok": false, "error": err.Error()}
			ready = false
		} else {
			checks["db"] = gin.H{"ok": true}
		}
	}

	if r.processor != nil {
		ph := r.processor.Health()
		checks["processor"] = ph
		if !ph.IsRunning {
			ready = false
		}
	}

	if ready {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ready",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"checks":    checks,
		})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{
		"status":    "not_ready",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

// ChatRequest is the body of POST /api/chat
type ChatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// ChatResponse is the reply to POST /api/chat
type ChatResponse struct {
	SessionID string `json:"session_id"`
	Reply     string `json:"reply"`
}

func (r *Router) sendChatMessage(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "JSON body is required"})
		return
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}

	reply, err := r.service.SendMessage(c.Request.Context(), strings.TrimSpace(req.SessionID), message)
	if err != nil {
		r.writeChatError(c, err)
		return
	}

	c.JSON(http.StatusOK, ChatResponse{
		SessionID: reply.SessionID,
		Reply:     reply.Message.Text,
	})
}

// writeChatError maps chat failures to HTTP statuses
func (r *Router) writeChatError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
	case errors.Is(err, chat.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case chat.IsAdapterError(err):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "llm_unavailable",
			"message": "The language model is unavailable.",
		})
	case errors.Is(err, chat.ErrNoAdapter):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "llm_unavailable",
			"message": "No language model is configured.",
		})
	default:
		requestLogger(c).WithError(err).Error("Failed to process chat message")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process message"})
	}
}

func (r *Router) getChatHistory(c *gin.Context) {
	sessionID := c.Param("session_id")

	records, err := r.service.History(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, chat.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		requestLogger(c).WithError(err).WithField("session_id", sessionID).Error("Failed to load chat history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chat history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"messages":   records,
	})
}

func (r *Router) getLLMConfig(c *gin.Context) {
	rows, err := r.service.ListModelConfig(c.Request.Context())
	if err != nil {
		requestLogger(c).WithError(err).Error("Failed to list model config")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load config"})
		return
	}
	if len(rows) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "config not initialized"})
		return
	}
	c.JSON(http.StatusOK, rows)
}

// LLMConfigRequest is the body of POST /api/config/llm
type LLMConfigRequest struct {
	Provider  string `json:"provider"`
	ModelName string `json:"model_name"`
}

func (r *Router) setLLMConfig(c *gin.Context) {
	var req LLMConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "JSON object expected"})
		return
	}

	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	model := strings.TrimSpace(req.ModelName)
	if provider == "" || model == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "provider and model_name are required"})
		return
	}

	if _, err := r.service.Reconfigure(c.Request.Context(), provider, model); err != nil {
		switch {
		case errors.Is(err, chat.ErrUnsupportedModel):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":      "unsupported provider/model",
				"provider":   provider,
				"model_name": model,
			})
		case errors.Is(err, catalog.ErrProviderNotFound), errors.Is(err, catalog.ErrConfig):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			requestLogger(c).WithError(err).Error("Failed to reconfigure language model")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to switch model"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"provider": provider, "model_name": model})
}

func (r *Router) getActiveLLM(c *gin.Context) {
	active, ok := r.service.Active()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active language model"})
		return
	}
	c.JSON(http.StatusOK, active)
}

// EmbedRequest is the body of POST /api/embed
type EmbedRequest struct {
	Texts []string `json:"texts"`
}

func (r *Router) embed(c *gin.Context) {
	var req EmbedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "JSON body is required"})
		return
	}

	vectors, err := r.service.Embed(c.Request.Context(), req.Texts)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrNotImplemented):
			c.JSON(http.StatusNotImplemented, gin.H{"error": "embeddings are not supported by the active model"})
		case chat.IsAdapterError(err):
			c.JSON(http.StatusBadGateway, gin.H{
				"error":   "llm_unavailable",
				"message": "The language model is unavailable.",
			})
		case errors.Is(err, chat.ErrNoAdapter):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "llm_unavailable", "message": "No language model is configured."})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute embeddings"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"embeddings": vectors})
}

func (r *Router) createDocument(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	defer file.Close()

	doc, err := r.documents.Upload(c.Request.Context(), &document.Upload{
		Filename: header.Filename,
		MimeType: header.Header.Get("Content-Type"),
		Content:  file,
	})
	if err != nil {
		var uploadErr *document.UploadError
		if errors.As(err, &uploadErr) {
			c.JSON(uploadErr.StatusCode, gin.H{"error": uploadErr.Message})
			return
		}
		requestLogger(c).WithError(err).Error("Failed to store document")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store document"})
		return
	}

	c.JSON(http.StatusCreated, doc)
}

func (r *Router) listDocuments(c *gin.Context) {
	docs, err := r.documents.List(c.Request.Context())
	if err != nil {
		requestLogger(c).WithError(err).Error("Failed to list documents")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list documents"})
		return
	}
	c.JSON(http.StatusOK, docs)
}

func (r *Router) deleteDocument(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
		return
	}

	if err := r.documents.Delete(c.Request.Context(), uint(id)); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
			return
		}
		requestLogger(c).WithError(err).WithField("document_id", id).Error("Failed to delete document")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete document"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted", "id": id})
}

// getAggregatedMetrics reports exchange outcomes and the metrics pipeline state
func (r *Router) getAggregatedMetrics(c *gin.Context) {
	limitStr := c.DefaultQuery("limit", "1000")
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit parameter"})
		return
	}

	metrics, err := r.exchanges.GetAggregatedMetrics(c.Request.Context(), limit)
	if err != nil {
		logrus.WithError(err).Error("Failed to get aggregated metrics")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve aggregated metrics"})
		return
	}

	response := gin.H{"exchanges": metrics}
	if r.processor != nil {
		response["processor"] = r.processor.Health()
	}
	c.JSON(http.StatusOK, response)
}
