package api

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pixelforge/imagesvc/internal/generation"
	"github.com/pixelforge/imagesvc/internal/metrics"
	"github.com/pixelforge/imagesvc/internal/pdf"
)

type generateRequest struct {
	RequestID string `json:"request_id"`
	Prompt    string `json:"prompt"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

type convertHTMLRequest struct {
	RequestID string `json:"request_id"`
	HTML      string `json:"html"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	s.stats.RecordRequest(r.Method, "/generate")

	var body generateRequest
	if err := decodeJSON(r, &body); err != nil {
		s.stats.RecordError("VALIDATION_ERROR")
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	req := generation.Request{
		RequestID: body.RequestID,
		Prompt:    body.Prompt,
		Width:     body.Width,
		Height:    body.Height,
	}
	req.ApplyDefaults()

	// Reject invalid input before any outbound call is made.
	if req.RequestID == "" || req.Prompt == "" {
		s.stats.RecordError("VALIDATION_ERROR")
		writeError(w, http.StatusBadRequest, "Missing request_id or prompt")
		return
	}
	if !generation.ValidRequestID(req.RequestID) {
		s.stats.RecordError("VALIDATION_ERROR")
		writeError(w, http.StatusBadRequest, "request_id must be a valid GUID")
		return
	}

	if s.generator == nil {
		s.stats.RecordError("CONFIG_ERROR")
		s.writeConfigIncomplete(w)
		return
	}

	done := metrics.GenerationStarted()
	defer done()
	start := s.clock.Now()

	result, err := s.generator.Generate(r.Context(), req)
	duration := s.clock.Now().Sub(start)

	if err != nil {
		s.stats.RecordOutcome(duration, false)
		s.stats.RecordError(errorKind(err))
		metrics.ObserveGeneration("failed", duration)
		s.logger.Error("generation failed",
			zap.String("request_id", req.RequestID),
			zap.Error(err),
		)
		switch {
		case errors.Is(err, generation.ErrValidation):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, generation.ErrConfiguration):
			s.writeConfigIncomplete(w)
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	s.stats.RecordOutcome(duration, true)
	metrics.ObserveGeneration("completed", duration)

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "success",
		"request_id": result.RequestID,
		"image_url":  result.ImageURL,
		"blob_url":   result.BlobURL,
	})
}

func (s *Server) handleConvertHTMLToPDF(w http.ResponseWriter, r *http.Request) {
	s.stats.RecordRequest(r.Method, "/convert_html_to_pdf")

	var body convertHTMLRequest
	if err := decodeJSON(r, &body); err != nil {
		s.stats.RecordError("VALIDATION_ERROR")
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if body.RequestID == "" || strings.TrimSpace(body.HTML) == "" {
		s.stats.RecordError("VALIDATION_ERROR")
		writeError(w, http.StatusBadRequest, "Missing request_id or html")
		return
	}
	if !generation.ValidRequestID(body.RequestID) {
		s.stats.RecordError("VALIDATION_ERROR")
		writeError(w, http.StatusBadRequest, "request_id must be a valid GUID")
		return
	}

	if s.renderer == nil {
		s.stats.RecordError("CONFIG_ERROR")
		writeError(w, http.StatusServiceUnavailable, "PDF conversion is not enabled")
		return
	}

	data, err := s.renderer.Render(r.Context(), body.HTML)
	if err != nil {
		if errors.Is(err, pdf.ErrRendererDisabled) {
			s.stats.RecordError("CONFIG_ERROR")
			writeError(w, http.StatusServiceUnavailable, "PDF conversion is not enabled")
			return
		}
		s.stats.RecordError("PDF_ERROR")
		s.logger.Error("pdf conversion failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// The output directory may not exist yet when only PDF conversion is
	// configured; the image resolver is the only other thing that creates it.
	if err := os.MkdirAll(s.cfg.Images.OutputDir, 0o750); err != nil {
		s.stats.RecordError("PDF_ERROR")
		s.logger.Error("create output dir failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to store PDF")
		return
	}

	name := body.RequestID + ".pdf"
	localPath := filepath.Join(s.cfg.Images.OutputDir, name)
	if err := os.WriteFile(localPath, data, 0o600); err != nil {
		s.stats.RecordError("PDF_ERROR")
		s.logger.Error("write pdf file failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to store PDF")
		return
	}

	pdfURL := strings.TrimSuffix(s.cfg.Images.PublicBaseURL, "/") + "/" + name
	if s.blobs != nil {
		blobPath := "generated_pdfs/" + name
		url, err := s.blobs.PutObject(r.Context(), blobPath, "application/pdf", data)
		if err != nil {
			// Upload failure keeps the local copy usable.
			metrics.ObserveUploadFailure()
			s.logger.Warn("pdf upload failed", zap.Error(err))
		} else {
			pdfURL = url
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "success",
		"pdf_blob_url": pdfURL,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.stats.RecordRequest(r.Method, "/stats")
	writeJSON(w, http.StatusOK, s.stats.Snapshot())
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	missing := s.cfg.MissingInferenceConfig()
	if missing == nil {
		missing = []string{}
	}
	snap := s.stats.Snapshot()

	status := "healthy"
	code := http.StatusOK
	if len(missing) > 0 {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"service":   "image-generation",
		"status":    status,
		"timestamp": s.clock.Now().Format(time.RFC3339),
		"uptime":    snap["uptime_formatted"],
		"configuration": map[string]any{
			"api_configured": len(missing) == 0,
			"missing_config": missing,
		},
		"performance": map[string]any{
			"total_requests":        snap["total_requests"],
			"success_rate":          snap["success_rate"],
			"average_response_time": snap["average_response_time"],
		},
		"endpoints": map[string]string{
			"generate":    "/generate",
			"pdf_convert": "/convert_html_to_pdf",
			"health":      "/healthz",
			"stats":       "/stats",
		},
	})
}

func (s *Server) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (s *Server) writeConfigIncomplete(w http.ResponseWriter) {
	writeJSON(w, http.StatusServiceUnavailable, map[string]any{
		"status":         "error",
		"message":        "Service configuration incomplete",
		"error_code":     "CONFIG_MISSING",
		"missing_config": s.cfg.MissingInferenceConfig(),
	})
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, generation.ErrValidation):
		return "VALIDATION_ERROR"
	case errors.Is(err, generation.ErrTimeout):
		return "TIMEOUT_ERROR"
	case errors.Is(err, generation.ErrSubmission):
		return "SUBMISSION_ERROR"
	case errors.Is(err, generation.ErrGenerationFailed):
		return "GENERATION_ERROR"
	case errors.Is(err, generation.ErrOutputFormat):
		return "OUTPUT_FORMAT_ERROR"
	case errors.Is(err, generation.ErrUnrecognizedReference):
		return "REFERENCE_ERROR"
	case errors.Is(err, generation.ErrConfiguration):
		return "CONFIG_ERROR"
	default:
		return "INTERNAL_ERROR"
	}
}
