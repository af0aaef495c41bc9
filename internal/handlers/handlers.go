package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"github.com/example/vision-pipeline/internal/auth"
	"github.com/example/vision-pipeline/internal/history"
	"github.com/example/vision-pipeline/internal/pipeline"
	"github.com/example/vision-pipeline/internal/repository"
	"github.com/example/vision-pipeline/internal/storage"
)

// MaxUploadSize bounds the accepted image size.
const MaxUploadSize = 10 << 20

// multipartOverhead leaves room for multipart framing on top of MaxUploadSize.
const multipartOverhead = 1 << 20

// History is the run history the API serves.
type History interface {
	List(ctx context.Context, session string, limit int) ([]*repository.RunLog, error)
	Summary(ctx context.Context, session string) (*history.SummaryReport, error)
}

// Dependencies groups what the routes need.
type Dependencies struct {
	Pipelines *pipeline.Registry
	Spool     *storage.Spool
	History   History
	Metrics   http.Handler
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, deps Dependencies, authMiddleware gin.HandlerFunc) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	h := &handler{deps: deps}

	group := router.Group("/pipeline", authMiddleware)
	group.POST("/upload", h.upload)
	group.POST("/analyze", h.analyze)
	group.GET("/state", h.state)
	group.GET("/events", h.events)

	runs := router.Group("/runs", authMiddleware)
	runs.GET("", h.listRuns)
	runs.GET("/summary", h.summary)
}

type handler struct {
	deps Dependencies
}

func (h *handler) controller(c *gin.Context) (*pipeline.Controller, bool) {
	session, ok := auth.Session(c.Request.Context())
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing session"})
		return nil, false
	}
	ctl, err := h.deps.Pipelines.Get(session)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return nil, false
	}
	return ctl, true
}

func (h *handler) upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadSize+multipartOverhead)

	file, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds upload limit"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
		return
	}
	if file.Size > MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds upload limit"})
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to open image"})
		return
	}
	defer src.Close()

	mtype, err := mimetype.DetectReader(src)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to read image"})
		return
	}
	if !strings.HasPrefix(mtype.String(), "image/") {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "unsupported content type " + mtype.String()})
		return
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read image"})
		return
	}

	ctl, ok := h.controller(c)
	if !ok {
		return
	}

	image, err := h.deps.Spool.Save(src, mtype.Extension())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to stage image"})
		return
	}

	if err := ctl.BeginUpload(image); err != nil {
		_ = h.deps.Spool.Discard(image)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, ctl.CurrentState())
}

func (h *handler) analyze(c *gin.Context) {
	ctl, ok := h.controller(c)
	if !ok {
		return
	}

	if err := ctl.BeginAnalysis(); err != nil {
		if errors.Is(err, pipeline.ErrOutOfOrder) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "state": ctl.CurrentState()})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, ctl.CurrentState())
}

func (h *handler) state(c *gin.Context) {
	ctl, ok := h.controller(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, ctl.CurrentState())
}

func (h *handler) events(c *gin.Context) {
	ctl, ok := h.controller(c)
	if !ok {
		return
	}

	states, cancel := ctl.Subscribe()
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Stream(func(w io.Writer) bool {
		select {
		case state, ok := <-states:
			if !ok {
				return false
			}
			c.SSEvent("state", state)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func (h *handler) listRuns(c *gin.Context) {
	session, _ := auth.Session(c.Request.Context())

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
			return
		}
		limit = n
	}

	logs, err := h.deps.History.List(c.Request.Context(), session, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load runs"})
		return
	}

	runs := make([]gin.H, 0, len(logs))
	for _, log := range logs {
		runs = append(runs, gin.H{
			"run_id":     log.RunID,
			"generation": log.Generation,
			"phase":      log.Phase,
			"stage":      log.Stage,
			"reason":     log.Reason,
			"image_url":  log.ImageURL,
			"labels":     log.Labels,
			"landmarks":  log.Landmarks,
			"web_guess":  log.WebGuess,
			"has_text":   log.HasText,
			"created_at": log.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (h *handler) summary(c *gin.Context) {
	session, _ := auth.Session(c.Request.Context())

	report, err := h.deps.History.Summary(c.Request.Context(), session)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to summarize runs"})
		return
	}
	c.JSON(http.StatusOK, report)
}
