package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/toothsense-analysis-server/internal/domain"
	"github.com/toothsense-analysis-server/internal/metrics"
)

// maxErrorBody bounds how much of a failed response body ends up in errors.
const maxErrorBody = 512

// InferenceClient calls the radiograph and gum-photo model servers. Both
// routes share one rate limiter and one circuit breaker.
type InferenceClient struct {
	baseURL    string
	httpClient *http.Client
	rateLimit  *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	logger     *logrus.Logger
	recorder   *metrics.Recorder
}

// NewInferenceClient creates a new inference backend client
func NewInferenceClient(config domain.InferenceConfig, cb domain.CircuitBreakerConfig, logger *logrus.Logger, recorder *metrics.Recorder) *InferenceClient {
	logger = orDiscard(logger)
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RateLimit <= 0 {
		config.RateLimit = 5
	}

	return &InferenceClient{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimit: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		breaker:   newCircuitBreaker(CollaboratorInference, cb, logger, recorder),
		logger:    logger,
		recorder:  recorder,
	}
}

// AnalyzeRadiograph posts the image to /analyze/xray.
func (c *InferenceClient) AnalyzeRadiograph(ctx context.Context, image domain.Image) (*domain.RawRadiographResponse, error) {
	var out domain.RawRadiographResponse
	if err := c.analyze(ctx, domain.ImageKindRadiograph, image, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AnalyzeGumPhoto posts the image to /analyze/gum.
func (c *InferenceClient) AnalyzeGumPhoto(ctx context.Context, image domain.Image) (*domain.RawGumPhotoResponse, error) {
	var out domain.RawGumPhotoResponse
	if err := c.analyze(ctx, domain.ImageKindGumPhoto, image, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BreakerState returns the current circuit breaker state.
func (c *InferenceClient) BreakerState() gobreaker.State {
	return c.breaker.State()
}

func (c *InferenceClient) analyze(ctx context.Context, kind domain.ImageKind, image domain.Image, out interface{}) error {
	op := "analyze " + kind.WireID()
	start := time.Now()

	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.post(ctx, op, kind, image, out)
	})

	if err != nil && isBreakerRejection(err) {
		err = domain.NewAnalysisError(domain.ErrTransportFailure, op, err)
	}

	code := ""
	if err != nil {
		code = domain.CodeOf(err)
		c.logger.WithFields(logrus.Fields{
			"image_kind": kind,
			"code":       code,
			"error":      err.Error(),
		}).Error("Inference request failed")
	}
	c.recorder.ObserveInference(kind, code, time.Since(start))

	return err
}

func (c *InferenceClient) post(ctx context.Context, op string, kind domain.ImageKind, image domain.Image, out interface{}) error {
	if err := c.rateLimit.Wait(ctx); err != nil {
		return domain.NewAnalysisError(domain.ErrTransportFailure, op, fmt.Errorf("rate limit wait failed: %w", err))
	}

	body, contentType, err := encodeImageForm(image)
	if err != nil {
		return domain.NewAnalysisError(domain.ErrTransportFailure, op, err)
	}

	endpoint := fmt.Sprintf("%s/analyze/%s", c.baseURL, kind.WireID())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return domain.NewAnalysisError(domain.ErrTransportFailure, op, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.NewAnalysisError(domain.ErrTransportFailure, op, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return domain.NewAnalysisError(domain.ErrTransportFailure, op, err)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.NewAnalysisError(domain.ErrTransportFailure, op, fmt.Errorf("failed to read response: %w", err))
	}

	if err := json.Unmarshal(data, out); err != nil {
		return domain.NewAnalysisError(domain.ErrMalformedResponse, op, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

// encodeImageForm builds the multipart body with the image under "image".
func encodeImageForm(image domain.Image) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	filename := image.Filename
	if filename == "" {
		filename = "image"
	}
	contentType := image.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, filename))
	header.Set("Content-Type", contentType)

	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form part: %w", err)
	}
	if _, err := part.Write(image.Data); err != nil {
		return nil, "", fmt.Errorf("failed to write image: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finalize form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// checkStatus turns a non-2xx response into an error carrying a bounded
// excerpt of the body.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(excerpt))}
}

// StatusError is returned for non-success HTTP statuses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// StatusCodeOf returns the HTTP status carried by err, or 0.
func StatusCodeOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
