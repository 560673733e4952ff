// Package server exposes the question pipeline over HTTP.
package server

import (
	"context"
	"embed"
	"html/template"

	"github.com/gin-gonic/gin"

	"question-rag/internal/config"
	"question-rag/internal/models"
	"question-rag/internal/rag"
)

//go:embed templates/*.html
var templateFS embed.FS

// Service is the pipeline the handlers drive.
type Service interface {
	Generate(ctx context.Context, in rag.Input) (*rag.Result, error)
	History(ctx context.Context) ([]models.HistoryEntry, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

func NewRouter(svc Service, db Pinger, cfg *config.Config) *gin.Engine {
	gin.SetMode(cfg.Server.GinMode)
	router := gin.New()
	router.Use(requestLogger(), gin.Recovery())
	router.SetHTMLTemplate(template.Must(template.ParseFS(templateFS, "templates/*.html")))

	h := NewHandler(svc, db, &cfg.Upload)
	router.GET("/", h.Index)
	router.POST("/upload", h.Upload)
	router.GET("/view_questions", h.ViewQuestions)
	router.GET("/healthz", h.Health)

	v1 := router.Group("/api/v1")
	v1.GET("/documents", h.ListDocuments)
	v1.POST("/documents", h.CreateDocument)

	return router
}
