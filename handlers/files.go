package handlers

import (
	"errors"
	"io/fs"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/csrf"
	"go.uber.org/zap"

	"moviecatalog/middleware"
	"moviecatalog/storage"
)

func (h *Handler) GetPoster(c *gin.Context) {
	key := c.Param("filename")

	obj, err := h.catalog.Open(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidKey) {
			c.JSON(http.StatusNotFound, middleware.ErrorBody("", "Poster not found"))
			return
		}
		h.log.Error("Failed to open poster", zap.String("poster", key), zap.Error(err))
		c.JSON(http.StatusInternalServerError, middleware.ErrorBody("", "Failed to read poster"))
		return
	}
	defer obj.Body.Close()

	extra := map[string]string{}
	if !obj.ModTime.IsZero() {
		extra["Last-Modified"] = obj.ModTime.UTC().Format(http.TimeFormat)
	}
	c.DataFromReader(http.StatusOK, obj.Size, obj.ContentType, obj.Body, extra)
}

// CSRFToken issues a token for the X-CSRFToken header or csrf_token form
// field. The token is empty when CSRF protection is off.
func (h *Handler) CSRFToken(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"csrf_token": csrf.Token(c.Request)})
}

// StaticText serves /<name>.txt from the static files and answers every
// other unmatched route with 404.
func (h *Handler) StaticText(c *gin.Context) {
	name := strings.TrimPrefix(c.Request.URL.Path, "/")
	if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead ||
		h.static == nil || !strings.HasSuffix(name, ".txt") || strings.Contains(name, "/") {
		h.NotFound(c)
		return
	}

	info, err := fs.Stat(h.static, name)
	if err != nil || info.IsDir() {
		h.NotFound(c)
		return
	}
	c.FileFromFS(name, http.FS(h.static))
}
