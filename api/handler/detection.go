// Package handler - gin handlers for the detection front-end.
package handler

import (
	"io"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/nvr-ai/go-targeting/images"
	"github.com/nvr-ai/go-targeting/inference"
	"github.com/nvr-ai/go-targeting/service"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultConfidence is used when an upload carries no confidence field.
const DefaultConfidence = 0.25

const msgModelNotLoaded = "Model not loaded. Please train the model first."

// DetectionHandler serves the page and the upload endpoint.
type DetectionHandler struct {
	svc        *service.DetectionService
	hub        *Hub
	staticDir  string
	maxBytes   int64
	confidence float64
	log        logrus.FieldLogger
}

// DetectionOptions configures a DetectionHandler.
type DetectionOptions struct {
	StaticDir string
	// MaxUploadBytes caps the request body.
	MaxUploadBytes int64
	// Confidence is the default threshold. Zero selects DefaultConfidence.
	Confidence float64
}

// NewDetectionHandler returns a DetectionHandler. hub may be nil.
func NewDetectionHandler(svc *service.DetectionService, hub *Hub, opts DetectionOptions, log logrus.FieldLogger) *DetectionHandler {
	if opts.Confidence == 0 {
		opts.Confidence = DefaultConfidence
	}
	return &DetectionHandler{
		svc:        svc,
		hub:        hub,
		staticDir:  opts.StaticDir,
		maxBytes:   opts.MaxUploadBytes,
		confidence: opts.Confidence,
		log:        log,
	}
}

// Index serves GET /.
func (h *DetectionHandler) Index(c *gin.Context) {
	c.Header("X-Model-Loaded", strconv.FormatBool(h.svc.Available()))
	c.File(filepath.Join(h.staticDir, "index.html"))
}

// Upload serves POST /upload.
func (h *DetectionHandler) Upload(c *gin.Context) {
	if !h.svc.Available() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": msgModelNotLoaded})
		return
	}

	if h.maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes)
	}

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large"})
		case errors.Is(err, http.ErrMissingFile) && emptyFilePart(c.Request):
			c.JSON(http.StatusBadRequest, gin.H{"error": "No file selected"})
		case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
			c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "Malformed upload: " + err.Error()})
		}
		return
	}
	if _, ok := images.FormatFromFilename(header.Filename); !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid file type"})
		return
	}

	confidence := h.confidence
	if raw := c.PostForm("confidence"); raw != "" {
		confidence, err = strconv.ParseFloat(raw, 64)
		if err != nil || confidence < 0 || confidence > 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid confidence: must be a number between 0 and 1"})
			return
		}
	}

	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Could not read upload"})
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Could not read upload"})
		return
	}

	res, err := h.svc.Detect(c.Request.Context(), service.DetectRequest{
		Filename:   header.Filename,
		Data:       data,
		Confidence: float32(confidence),
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	if h.hub != nil {
		h.hub.Publish(DetectionEvent{
			RequestID:  res.RequestID,
			Filename:   header.Filename,
			TotalCount: res.Set.TotalCount,
			Detections: res.Set.Detections,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"request_id":      res.RequestID,
		"original_image":  res.Original.Base64(),
		"annotated_image": res.Annotated.Base64(),
		"annotated_file":  res.AnnotatedName,
		"mime_type":       res.Annotated.Format.MIMEType(),
		"detections":      res.Set.Detections,
		"total_weeds":     res.Set.TotalCount,
		"total_count":     res.Set.TotalCount,
		"image_size":      res.Set.ImageSize,
	})
}

// emptyFilePart reports whether the form had a "file" part without a filename.
// Multipart parsing stores such a part as a plain value, not a file.
func emptyFilePart(r *http.Request) bool {
	if r.MultipartForm == nil {
		return false
	}
	_, ok := r.MultipartForm.Value["file"]
	return ok
}

func (h *DetectionHandler) fail(c *gin.Context, err error) {
	var (
		decodeErr *images.DecodeError
		detectErr *service.DetectionError
	)
	switch {
	case errors.Is(err, inference.ErrModelUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": msgModelNotLoaded})
	case errors.Is(err, service.ErrUnsupportedFormat):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid file type"})
	case errors.As(err, &decodeErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Could not decode image"})
	case errors.As(err, &detectErr):
		h.log.WithError(err).Error("detection failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Detection failed: " + detectErr.Err.Error()})
	default:
		h.log.WithError(err).Error("upload processing failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Processing failed: " + err.Error()})
	}
	_ = c.Error(err)
}
