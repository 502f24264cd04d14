package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pr-reaction-bridge/internal/auth"
	"pr-reaction-bridge/internal/middleware"
)

// RouterConfig wires the handlers and their authentication into one router.
type RouterConfig struct {
	Slack         *SlackHandler
	GitHub        *GitHubHandler
	Records       *RecordsHandler
	SlackVerifier *auth.SlackVerifier
	GitHubSecret  string
	APIAdminKey   string
}

// NewRouter registers every route of the service.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.LoggingMiddleware())

	router.POST("/webhooks/slack", middleware.SlackSignature(cfg.SlackVerifier), cfg.Slack.HandleWebhook)
	router.POST("/webhooks/github", middleware.GitHubSignature(cfg.GitHubSecret), cfg.GitHub.HandleWebhook)

	records := middleware.APIKeyAuth(cfg.APIAdminKey)
	router.GET("/api/records", records, cfg.Records.List)
	router.GET("/", records, cfg.Records.List)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	return router
}
