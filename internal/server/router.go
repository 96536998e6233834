package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/bundlekeep/bundlekeep/internal/auth"
	"github.com/bundlekeep/bundlekeep/internal/registry"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	errMissingKeyValidator    = errors.New("key validator dependency required")
	errMissingRegistryService = errors.New("registry service dependency required")
)

// Dependencies carries everything the HTTP layer needs.
type Dependencies struct {
	KeyValidator    *auth.KeyValidator
	RegistryService *registry.Service
	Clock           func() time.Time
	Logger          *zap.Logger
}

// NewHTTPHandler wires the gin router with middleware and registry routes.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.KeyValidator == nil {
		return nil, errMissingKeyValidator
	}
	if deps.RegistryService == nil {
		return nil, errMissingRegistryService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-API-Key"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		keys:     deps.KeyValidator,
		registry: deps.RegistryService,
		clock:    clock,
		logger:   logger,
	}

	router.GET("/health", handler.handleHealth)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/bundles", handler.handleCreateBundle)
	protected.POST("/files", handler.handleAddFile)
	protected.GET("/bundles/:code", handler.handleGetBundle)
	protected.GET("/bundles/:code/files", handler.handleListFiles)
	protected.GET("/export/:code", handler.handleExportBundle)
	protected.PATCH("/bundles/:code", handler.handleUpdateBundle)
	protected.POST("/bundles/:code/finalize", handler.handleFinalizeBundle)

	return router, nil
}

type httpHandler struct {
	keys     *auth.KeyValidator
	registry *registry.Service
	clock    func() time.Time
	logger   *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "time": h.clock().UnixMilli()})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	token := auth.ExtractToken(c.GetHeader("X-API-Key"), c.GetHeader("Authorization"))
	err := h.keys.Validate(token)
	if err == nil {
		c.Next()
		return
	}

	status := http.StatusForbidden
	if errors.Is(err, auth.ErrMissingAPIKey) {
		status = http.StatusUnauthorized
	}
	h.logger.Warn("request rejected",
		zap.String("path", c.Request.URL.Path),
		zap.Error(err))
	c.AbortWithStatusJSON(status, gin.H{"ok": false, "error": err.Error()})
}

type createBundlePayload struct {
	ID           string `json:"id"`
	OwnerID      string `json:"owner_id"`
	OwnerName    string `json:"owner_name"`
	HeaderChatID string `json:"header_chat_id"`
	HeaderMsgID  int64  `json:"header_msg_id"`
	CreatedAt    int64  `json:"created_at"`
}

func (h *httpHandler) handleCreateBundle(c *gin.Context) {
	var payload createBundlePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid request body"})
		return
	}

	bundle, err := h.registry.CreateBundle(c.Request.Context(), registry.CreateBundleRequest{
		Code:            payload.ID,
		OwnerID:         payload.OwnerID,
		OwnerName:       payload.OwnerName,
		HeaderChatID:    payload.HeaderChatID,
		HeaderMsgID:     payload.HeaderMsgID,
		CreatedAtMillis: payload.CreatedAt,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "bundle": bundle})
}

type addFilePayload struct {
	Code         string `json:"code"`
	ChannelMsgID int64  `json:"channel_msg_id"`
	HeaderChatID string `json:"header_chat_id"`
	Caption      string `json:"caption"`
	AddedAt      int64  `json:"added_at"`
}

func (h *httpHandler) handleAddFile(c *gin.Context) {
	var payload addFilePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid request body"})
		return
	}

	code, err := registry.NewBundleCode(payload.Code)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "code is required"})
		return
	}

	file, err := h.registry.AddFile(c.Request.Context(), registry.AddFileRequest{
		Code:          code,
		ChannelMsgID:  payload.ChannelMsgID,
		HeaderChatID:  payload.HeaderChatID,
		Caption:       payload.Caption,
		AddedAtMillis: payload.AddedAt,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "file": file})
}

func (h *httpHandler) handleGetBundle(c *gin.Context) {
	code, err := registry.NewBundleCode(c.Param("code"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "code is required"})
		return
	}

	bundle, err := h.registry.GetBundle(c.Request.Context(), code)
	if err != nil {
		h.respondError(c, err)
		return
	}

	if !includeFilesRequested(c.Query("includeFiles")) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "bundle": bundle})
		return
	}

	files, err := h.registry.ListFiles(c.Request.Context(), code)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "bundle": bundle, "files": files})
}

func includeFilesRequested(value string) bool {
	return value == "1" || value == "true"
}

func (h *httpHandler) handleListFiles(c *gin.Context) {
	code, err := registry.NewBundleCode(c.Param("code"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "code is required"})
		return
	}

	files, err := h.registry.ListFiles(c.Request.Context(), code)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "files": files})
}

type exportedBundle struct {
	*registry.Bundle
	Files []registry.File `json:"files"`
}

func (h *httpHandler) handleExportBundle(c *gin.Context) {
	code, err := registry.NewBundleCode(c.Param("code"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "code is required"})
		return
	}

	bundle, files, err := h.registry.ExportBundle(c.Request.Context(), code)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "bundle": exportedBundle{Bundle: bundle, Files: files}})
}

type updateBundlePayload struct {
	FinalizedAt  *int64  `json:"finalized_at"`
	FilesCount   *int64  `json:"files_count"`
	HeaderMsgID  *int64  `json:"header_msg_id"`
	HeaderChatID *string `json:"header_chat_id"`
	OwnerName    *string `json:"owner_name"`
	OwnerID      *string `json:"owner_id"`
}

func (h *httpHandler) handleUpdateBundle(c *gin.Context) {
	code, err := registry.NewBundleCode(c.Param("code"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "code is required"})
		return
	}

	var payload updateBundlePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid request body"})
		return
	}

	bundle, err := h.registry.UpdateBundle(c.Request.Context(), code, registry.BundleUpdate{
		FinalizedAtMillis: payload.FinalizedAt,
		FilesCount:        payload.FilesCount,
		HeaderMsgID:       payload.HeaderMsgID,
		HeaderChatID:      payload.HeaderChatID,
		OwnerName:         payload.OwnerName,
		OwnerID:           payload.OwnerID,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "bundle": bundle})
}

type finalizeBundlePayload struct {
	FinalizedAt *int64 `json:"finalized_at"`
	FilesCount  *int64 `json:"files_count"`
}

func (h *httpHandler) handleFinalizeBundle(c *gin.Context) {
	code, err := registry.NewBundleCode(c.Param("code"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "code is required"})
		return
	}

	var payload finalizeBundlePayload
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid request body"})
			return
		}
	}

	bundle, err := h.registry.FinalizeBundle(c.Request.Context(), code, payload.FinalizedAt, payload.FilesCount)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "bundle": bundle})
}

func (h *httpHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, registry.ErrBundleNotFound):
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "bundle not found"})
	case errors.Is(err, registry.ErrEmptyBundleUpdate), errors.Is(err, registry.ErrInvalidBundleCode):
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
	default:
		h.logger.Error("registry operation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
	}
}
