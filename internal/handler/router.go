package handler

import (
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"vibegame-backend/internal/config"
	"vibegame-backend/internal/middleware"
)

func SetupRouter(cfg *config.Config, chatHandler *ChatHandler) *gin.Engine {
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.NoMethod(MethodNotAllowed)

	router.Use(middleware.RequestLogger())
	router.Use(Recovery())

	router.Use(cors.New(cors.Config{
		AllowOrigins:              cfg.CORS.AllowedOrigins,
		AllowMethods:              cfg.CORS.AllowedMethods,
		AllowHeaders:              cfg.CORS.AllowedHeaders,
		ExposeHeaders:             cfg.CORS.ExposedHeaders,
		AllowCredentials:          cfg.CORS.AllowCredentials,
		MaxAge:                    time.Duration(cfg.CORS.MaxAge) * time.Second,
		OptionsResponseStatusCode: 200,
	}))

	router.GET("/health", chatHandler.Health)

	api := router.Group("/api")
	{
		chat := api.Group("/chat")
		if cfg.RateLimit.Enabled {
			chat.Use(middleware.NewRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst).Middleware())
		}
		{
			preflight := preflightHeaders(cfg.CORS)
			chat.POST("", chatHandler.Chat)
			chat.OPTIONS("", preflight, chatHandler.Options)
			chat.POST("/stream", chatHandler.StreamChat)
			chat.OPTIONS("/stream", preflight, chatHandler.Options)
		}
	}

	return router
}

// preflightHeaders answers OPTIONS requests that carry no Origin header,
// which the cors middleware passes through untouched.
func preflightHeaders(cfg config.CORSConfig) gin.HandlerFunc {
	origin := "*"
	if len(cfg.AllowedOrigins) > 0 && !slices.Contains(cfg.AllowedOrigins, "*") {
		origin = cfg.AllowedOrigins[0]
	}
	methods := strings.Join(cfg.AllowedMethods, ", ")
	headers := strings.Join(cfg.AllowedHeaders, ", ")

	return func(c *gin.Context) {
		if c.GetHeader("Origin") != "" {
			c.Next()
			return
		}
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		if methods != "" {
			h.Set("Access-Control-Allow-Methods", methods)
		}
		if headers != "" {
			h.Set("Access-Control-Allow-Headers", headers)
		}
		if cfg.AllowCredentials && origin != "*" {
			h.Set("Access-Control-Allow-Credentials", "true")
		}
		if cfg.MaxAge > 0 {
			h.Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
		}
		c.Next()
	}
}
