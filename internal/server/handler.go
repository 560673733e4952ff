package server

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"question-rag/internal/config"
	"question-rag/internal/helper"
	"question-rag/internal/rag"
	"question-rag/internal/render"
)

const (
	MsgNoFile     = "No file selected"
	MsgNotPDF     = "Please upload a PDF file"
	MsgTooLarge   = "File is too large"
	MsgProcessing = "Error processing file: "

	// room for multipart headers on top of the file itself
	multipartOverhead = 1 << 20
)

type Handler struct {
	svc    Service
	db     Pinger
	upload *config.UploadConfig
}

func NewHandler(svc Service, db Pinger, upload *config.UploadConfig) *Handler {
	return &Handler{svc: svc, db: db, upload: upload}
}

// uploadError is a rejected upload, reported before anything touches disk.
type uploadError struct {
	status  int
	code    int
	message string
}

type upload struct {
	path       string
	name       string
	regenerate bool
	cleanup    func()
}

// receiveUpload validates the multipart file and writes it to a private
// temporary directory. cleanup removes that directory and must be called
// whenever err is nil.
func (h *Handler) receiveUpload(c *gin.Context) (*upload, *uploadError) {
	if h.upload.MaxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.upload.MaxBytes+multipartOverhead)
	}
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &uploadError{http.StatusRequestEntityTooLarge, CodeTooLarge, MsgTooLarge}
		}
		return nil, &uploadError{http.StatusBadRequest, CodeBadRequest, MsgNoFile}
	}
	name := helper.SanitizeFilename(fh.Filename)
	if name == "" {
		return nil, &uploadError{http.StatusBadRequest, CodeBadRequest, MsgNoFile}
	}
	if !h.upload.AllowsExtension(filepath.Ext(name)) {
		return nil, &uploadError{http.StatusBadRequest, CodeBadRequest, MsgNotPDF}
	}
	if h.upload.MaxBytes > 0 && fh.Size > h.upload.MaxBytes {
		return nil, &uploadError{http.StatusRequestEntityTooLarge, CodeTooLarge, MsgTooLarge}
	}

	if h.upload.TempDir != "" {
		if err := helper.CreateFolder(h.upload.TempDir); err != nil {
			return nil, &uploadError{http.StatusInternalServerError, CodeInternalServer, MsgProcessing + err.Error()}
		}
	}
	dir, err := os.MkdirTemp(h.upload.TempDir, "upload-*")
	if err != nil {
		return nil, &uploadError{http.StatusInternalServerError, CodeInternalServer, MsgProcessing + err.Error()}
	}
	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("Failed to remove upload dir")
		}
	}
	path := filepath.Join(dir, name)
	if err := c.SaveUploadedFile(fh, path); err != nil {
		cleanup()
		return nil, &uploadError{http.StatusInternalServerError, CodeInternalServer, MsgProcessing + err.Error()}
	}

	regenerate, _ := strconv.ParseBool(c.PostForm("regenerate"))
	if c.PostForm("regenerate") == "on" {
		regenerate = true
	}
	return &upload{path: path, name: name, regenerate: regenerate, cleanup: cleanup}, nil
}

func (h *Handler) generate(ctx context.Context, up *upload) (*rag.Result, error) {
	res, err := h.svc.Generate(ctx, rag.Input{Path: up.path, Name: up.name, Regenerate: up.regenerate})
	if err != nil {
		log.Error().Err(err).Str("name", up.name).Msg("Failed to generate questions")
		return nil, err
	}
	if res.PersistErr != nil {
		log.Warn().Err(res.PersistErr).Str("name", up.name).Msg("Questions generated but not stored")
	}
	return res, nil
}

func redirectWithMessage(c *gin.Context, message string) {
	c.Redirect(http.StatusSeeOther, "/?message="+url.QueryEscape(message))
}

func (h *Handler) Index(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{"message": c.Query("message")})
}

func (h *Handler) Upload(c *gin.Context) {
	up, uerr := h.receiveUpload(c)
	if uerr != nil {
		redirectWithMessage(c, uerr.message)
		return
	}
	defer up.cleanup()

	res, err := h.generate(c.Request.Context(), up)
	if err != nil {
		redirectWithMessage(c, MsgProcessing+err.Error())
		return
	}
	c.HTML(http.StatusOK, "questions.html", gin.H{
		"name":         res.Name,
		"content_hash": res.ContentHash,
		"cache_hit":    res.CacheHit,
		"questions":    template.HTML(render.Format(res.Questions)),
	})
}

type historyView struct {
	Name        string
	ContentHash string
	CreatedAt   time.Time
	HTML        template.HTML
}

func (h *Handler) ViewQuestions(c *gin.Context) {
	entries, err := h.svc.History(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to load history")
		redirectWithMessage(c, "Error loading questions: "+err.Error())
		return
	}
	views := make([]historyView, 0, len(entries))
	for _, e := range entries {
		views = append(views, historyView{
			Name:        e.Name,
			ContentHash: e.ContentHash,
			CreatedAt:   e.CreatedAt,
			HTML:        template.HTML(render.Format(e.Questions)),
		})
	}
	c.HTML(http.StatusOK, "history.html", gin.H{"entries": views})
}

func (h *Handler) ListDocuments(c *gin.Context) {
	entries, err := h.svc.History(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to load history")
		respondError(c, http.StatusInternalServerError, CodeInternalServer, "list documents failed")
		return
	}
	respondOK(c, entries)
}

func (h *Handler) CreateDocument(c *gin.Context) {
	up, uerr := h.receiveUpload(c)
	if uerr != nil {
		respondError(c, uerr.status, uerr.code, uerr.message)
		return
	}
	defer up.cleanup()

	res, err := h.generate(c.Request.Context(), up)
	if err != nil {
		respondError(c, http.StatusInternalServerError, CodeInternalServer, MsgProcessing+err.Error())
		return
	}
	respondOK(c, res)
}

func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		respondError(c, http.StatusServiceUnavailable, CodeUnavailable, "database: "+err.Error())
		return
	}
	respondOK(c, gin.H{"database": "ok"})
}
