package server

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"moviecatalog/app"
	"moviecatalog/handlers"
	"moviecatalog/middleware"
)

// multipartOverhead is the room left above the poster size limit for the
// text fields and multipart framing.
const multipartOverhead = 1 << 20

type Server struct {
	httpServer *http.Server
	app        *app.App
	log        *zap.Logger
}

// ErrDevSecret is returned when a release build would sign CSRF tokens with
// the public development key.
var ErrDevSecret = errors.New("SECRET_KEY must be set when CSRF protection is enabled")

func New(a *app.App, static fs.FS) (*Server, error) {
	if gin.Mode() == gin.ReleaseMode && a.Config.Security.CSRFEnabled && a.Config.UsesDevSecret() {
		return nil, ErrDevSecret
	}
	handler := NewHandler(a, static)

	server := &Server{
		httpServer: &http.Server{
			Addr:              a.Config.Server.Addr(),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       60 * time.Second,
			WriteTimeout:      60 * time.Second,
			MaxHeaderBytes:    1 << 20, // 1 MB
		},
		app: a,
		log: a.Log,
	}

	a.Log.Info("Server created successfully",
		zap.String("address", server.httpServer.Addr),
		zap.Bool("csrf", a.Config.Security.CSRFEnabled),
		zap.Bool("rate_limit", a.Config.Security.RateLimitEnabled))

	return server, nil
}

// NewHandler builds the full HTTP stack: gin routes inside the CSRF layer,
// both behind the request body cap.
func NewHandler(a *app.App, static fs.FS) http.Handler {
	cfg := a.Config
	router := gin.New()
	_ = router.SetTrustedProxies(nil)
	router.Use(middleware.RequestLogger(a.Log), gin.Recovery(), middleware.NoCacheHeaders())

	if len(cfg.Security.CORSAllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.Security.CORSAllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", middleware.CSRFHeader},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	h := handlers.New(a.Catalog, a.Validator, a, static, a.Log)

	router.GET("/", h.Index)
	router.GET("/health", h.Health)

	api := router.Group("/api/v1")
	if cfg.Security.RateLimitEnabled {
		limiter := middleware.NewRateLimiter(cfg.Security.RateLimitRPS, cfg.Security.RateLimitBurst)
		api.Use(limiter.Middleware())
	}
	{
		api.GET("/movies", h.ListMovies)
		api.POST("/movies", h.CreateMovie)
		api.GET("/posters/:filename", h.GetPoster)
		api.GET("/csrf-token", h.CSRFToken)
	}

	router.NoRoute(h.StaticText)

	var handler http.Handler = router
	if cfg.Security.CSRFEnabled {
		if cfg.UsesDevSecret() {
			a.Log.Warn("CSRF protection uses the built-in development SECRET_KEY")
		}
		handler = middleware.CSRF(cfg.Security.SecretKey, cfg.Security.CSRFSecureCookie, a.Log)(handler)
	}
	// Outermost, so the CSRF layer never reads past the cap either.
	return middleware.BodyLimit(cfg.Movie.MaxUploadSize + multipartOverhead)(handler)
}

func (s *Server) Run() error {
	s.log.Info("Server is running", zap.String("address", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down server")
	return s.httpServer.Shutdown(ctx)
}
