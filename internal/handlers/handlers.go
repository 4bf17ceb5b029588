package handlers

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/example/productmatch/internal/auth"
	"github.com/example/productmatch/internal/compliance"
	"github.com/example/productmatch/internal/logging"
	"github.com/example/productmatch/internal/matcher"
	"github.com/example/productmatch/internal/repository"
	"github.com/example/productmatch/internal/usecase"
)

// MaxUploadSize is the largest accepted image upload in bytes.
const MaxUploadSize = 10 << 20

// multipartOverhead leaves room for boundaries and headers around the file part.
const multipartOverhead = 1 << 20

var allowedContentTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/gif":  {},
	"image/bmp":  {},
	"image/webp": {},
}

// MatchService is the subset of the use case the HTTP layer calls.
type MatchService interface {
	Match(ctx context.Context, imageBytes []byte) (*usecase.MatchResponse, error)
	GetResult(ctx context.Context, searchID string) (*repository.MatchLog, error)
	Stats(ctx context.Context) (*usecase.StatsSummary, error)
}

// TermsAdmin exposes the forbidden-terms store to admin routes.
type TermsAdmin interface {
	Terms() compliance.Terms
	Reload() compliance.Terms
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, svc MatchService, terms TermsAdmin, authMiddleware gin.HandlerFunc) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/match", func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadSize+multipartOverhead)

		file, err := c.FormFile("image")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image too large"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
			return
		}
		if file.Size > MaxUploadSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image too large"})
			return
		}
		mediaType, _, err := mime.ParseMediaType(file.Header.Get("Content-Type"))
		if err != nil {
			c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "unsupported content type"})
			return
		}
		if _, ok := allowedContentTypes[mediaType]; !ok {
			c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "unsupported content type"})
			return
		}

		src, err := file.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unable to open image"})
			return
		}
		defer src.Close()

		data, err := io.ReadAll(src)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read image"})
			return
		}

		resp, err := svc.Match(c.Request.Context(), data)
		if err != nil {
			if errors.Is(err, matcher.ErrInvalidImage) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unable to decode image"})
				return
			}
			serverError(c, "search failed", err)
			return
		}

		body := gin.H{
			"search_id": resp.SearchID,
			"accepted":  resp.Result.Accepted,
			"report":    resp.Report,
			"verdict":   resp.Result.Verdict,
		}
		if o := resp.Result.Outcome; o != nil {
			body["score"] = o.Score
			body["entry"] = o.Entry
			body["path"] = o.ResolvedPath
		}
		c.JSON(http.StatusOK, body)
	})

	router.GET("/result/:id", func(c *gin.Context) {
		searchID := c.Param("id")
		if searchID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "id is required"})
			return
		}

		log, err := svc.GetResult(c.Request.Context(), searchID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "result not found"})
				return
			}
			serverError(c, "failed to load result", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"search_id":  log.SearchID,
			"entry_id":   log.EntryID,
			"entry_name": log.EntryName,
			"score":      log.Score,
			"accepted":   log.Accepted,
			"verdict":    log.Verdict,
			"report":     log.Report,
			"created_at": log.CreatedAt,
		})
	})

	router.GET("/stats", func(c *gin.Context) {
		summary, err := svc.Stats(c.Request.Context())
		if err != nil {
			serverError(c, "failed to aggregate stats", err)
			return
		}
		c.JSON(http.StatusOK, summary)
	})

	admin := router.Group("/admin", authMiddleware)
	admin.GET("/terms", func(c *gin.Context) {
		current := terms.Terms()
		c.JSON(http.StatusOK, gin.H{"count": current.Len(), "terms": current.List()})
	})
	admin.POST("/terms/reload", func(c *gin.Context) {
		reloaded := terms.Reload()
		subject, _ := auth.Subject(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"count": reloaded.Len(), "terms": reloaded.List(), "reloaded_by": subject})
	})
}

func serverError(c *gin.Context, message string, err error) {
	body := gin.H{"error": message}
	if op, ok := logging.OperationOf(err); ok {
		body["operation"] = op
	}
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, body)
}
