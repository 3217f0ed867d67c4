package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/toothsense-analysis-server/internal/domain"
	"github.com/toothsense-analysis-server/internal/middleware"
	"github.com/toothsense-analysis-server/internal/service"
)

// multipart overhead allowed on top of the image size limit
const formSlack = 1 << 20

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	status := "healthy"
	var services interface{} = []interface{}{}

	if s.health != nil {
		report := s.health.Health()
		for _, h := range report {
			if !h.Healthy {
				status = "degraded"
			}
		}
		services = report
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    status,
		"services":  services,
		"timestamp": time.Now().UTC(),
		"version":   version,
	})
}

// handleAnalyze runs one analysis from a multipart upload with an "image"
// file and an "image_type" field.
func (s *Server) handleAnalyze(c *gin.Context) {
	requestID := c.GetString(middleware.CorrelationIDKey)
	maxBytes := s.configManager.GetConfig().Analysis.MaxImageBytes
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+formSlack)

	req, err := s.readUpload(c, maxBytes)
	if err != nil {
		c.JSON(http.StatusBadRequest, domain.NewAPIError(domain.ErrInvalidInput, "Invalid analysis request", err.Error(), requestID))
		return
	}
	req.ID = requestID

	result, err := s.orchestrator.RunAnalysis(c.Request.Context(), req, nil)
	if err != nil {
		status, body := analysisFailure(err, requestID)
		c.JSON(status, body)
		return
	}

	c.Header("X-Analysis-ID", requestID)
	c.JSON(http.StatusOK, result)
}

// readUpload extracts the request from the form. A missing image or kind is
// left for the orchestrator to reject so every path reports INVALID_INPUT the
// same way.
func (s *Server) readUpload(c *gin.Context, maxBytes int64) (domain.AnalysisRequest, error) {
	var req domain.AnalysisRequest

	if raw := c.PostForm("image_type"); raw != "" {
		kind, err := domain.ParseImageKind(raw)
		if err != nil {
			return req, err
		}
		req.Kind = kind
	}

	header, err := c.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return req, nil
		}
		return req, fmt.Errorf("failed to read upload: %w", err)
	}
	if header.Size > maxBytes {
		return req, fmt.Errorf("image is %d bytes, limit is %d", header.Size, maxBytes)
	}

	f, err := header.Open()
	if err != nil {
		return req, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return req, fmt.Errorf("failed to read upload: %w", err)
	}

	req.Image = domain.Image{
		Data:        data,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
	}
	return req, nil
}

// handleReport renders a result as the downloadable text report.
func (s *Server) handleReport(c *gin.Context) {
	var result domain.UnifiedResult
	if err := c.ShouldBindJSON(&result); err != nil {
		c.JSON(http.StatusBadRequest, domain.NewAPIError(domain.ErrInvalidInput, "Invalid report request", err.Error(), c.GetString(middleware.CorrelationIDKey)))
		return
	}
	if result.PrimaryLabel == "" {
		c.JSON(http.StatusBadRequest, domain.NewAPIError(domain.ErrInvalidInput, "Invalid report request", "result has no disease", c.GetString(middleware.CorrelationIDKey)))
		return
	}

	now := time.Now()
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, service.ReportFilename(now)))
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(service.BuildReport(result, now)))
}

// handleDescribe returns the description for a finding without running an
// analysis.
func (s *Server) handleDescribe(c *gin.Context) {
	requestID := c.GetString(middleware.CorrelationIDKey)

	kind, err := domain.ParseImageKind(c.Query("image_type"))
	if err != nil {
		c.JSON(http.StatusBadRequest, domain.NewAPIError(domain.ErrInvalidInput, "Invalid describe request", err.Error(), requestID))
		return
	}
	label := c.Query("label")
	if label == "" {
		c.JSON(http.StatusBadRequest, domain.NewAPIError(domain.ErrInvalidInput, "Invalid describe request", "label is required", requestID))
		return
	}
	severity, err := domain.ParseSeverity(c.DefaultQuery("severity", string(domain.SeverityLow)))
	if err != nil {
		c.JSON(http.StatusBadRequest, domain.NewAPIError(domain.ErrInvalidInput, "Invalid describe request", err.Error(), requestID))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"image_type":  kind,
		"disease":     label,
		"severity":    severity,
		"description": service.Describe(kind, label, severity),
	})
}

// analysisFailure maps a workflow failure to a status and error body. The
// body carries the failure code but a generic message.
func analysisFailure(err error, requestID string) (int, *domain.APIError) {
	code := domain.CodeOf(err)

	switch {
	case errors.Is(err, domain.ErrAnalysisInFlight):
		return http.StatusConflict, domain.NewAPIError("ANALYSIS_IN_FLIGHT", "An analysis is already running", "", requestID)
	case code == domain.ErrInvalidInput:
		return http.StatusBadRequest, domain.NewAPIError(code, "Analysis failed", unwrapDetail(err), requestID)
	default:
		return http.StatusBadGateway, domain.NewAPIError(code, "Analysis failed. Please try again.", "", requestID)
	}
}

func unwrapDetail(err error) string {
	var ae *domain.AnalysisError
	if errors.As(err, &ae) && ae.Err != nil {
		return ae.Err.Error()
	}
	return ""
}
