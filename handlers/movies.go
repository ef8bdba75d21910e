package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"moviecatalog/catalog"
	"moviecatalog/forms"
	"moviecatalog/middleware"
)

// saveFailedMessage is all a client learns about a failed save.
const saveFailedMessage = "Failed to save movie"

func (h *Handler) ListMovies(c *gin.Context) {
	movies, err := h.catalog.List(c.Request.Context())
	if err != nil {
		h.log.Error("Failed to list movies", zap.Error(err))
		c.JSON(http.StatusInternalServerError, middleware.ErrorBody("", "Failed to load movies"))
		return
	}

	response := make([]gin.H, 0, len(movies))
	for _, m := range movies {
		response = append(response, gin.H{
			"id":          m.ID,
			"title":       m.Title,
			"description": m.Description,
			"poster":      catalog.PosterURL(m.Poster),
		})
	}

	c.JSON(http.StatusOK, gin.H{"movies": response})
}

func (h *Handler) CreateMovie(c *gin.Context) {
	var form forms.MovieForm
	if err := c.ShouldBind(&form); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			limit := h.validator.Rules().MaxPosterSize
			c.JSON(http.StatusBadRequest, middleware.ErrorBody("poster", forms.PosterTooLargeMessage(limit)))
			return
		}
		h.log.Warn("Failed to parse movie form", zap.Error(err))
		c.JSON(http.StatusBadRequest, middleware.ErrorBody("", "Invalid form submission"))
		return
	}

	input, fieldErrs := h.validator.ValidateMovie(form)
	if len(fieldErrs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"errors": fieldErrs})
		return
	}

	poster, err := input.Poster.Open()
	if err != nil {
		h.log.Error("Failed to open uploaded poster", zap.Error(err))
		c.JSON(http.StatusInternalServerError, middleware.ErrorBody("", saveFailedMessage))
		return
	}
	defer poster.Close()

	movie, err := h.catalog.Create(c.Request.Context(), catalog.NewMovie{
		Title:       input.Title,
		Description: input.Description,
		Filename:    input.Poster.Filename,
		Poster:      poster,
	})
	if err != nil {
		h.log.Error("Failed to create movie",
			zap.String("title", input.Title),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, middleware.ErrorBody("", saveFailedMessage))
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":     "Movie Successfully added",
		"title":       movie.Title,
		"poster":      movie.Poster,
		"description": movie.Description,
	})
}
