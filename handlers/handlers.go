package handlers

import (
	"context"
	"io/fs"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"moviecatalog/catalog"
	"moviecatalog/forms"
	"moviecatalog/middleware"
)

// Pinger reports database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	catalog   *catalog.Service
	validator *forms.Validator
	db        Pinger
	static    fs.FS
	log       *zap.Logger
}

// New builds the handler set. static holds the files served as /<name>.txt.
func New(svc *catalog.Service, validator *forms.Validator, db Pinger, static fs.FS, log *zap.Logger) *Handler {
	return &Handler{
		catalog:   svc,
		validator: validator,
		db:        db,
		static:    static,
		log:       log,
	}
}

func (h *Handler) Index(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "This is the beginning of our API"})
}

func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		h.log.Error("Health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "OK"})
}

func (h *Handler) NotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, middleware.ErrorBody("", "Not found"))
}
