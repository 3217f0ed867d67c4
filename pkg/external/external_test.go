package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toothsense-analysis-server/internal/domain"
	"github.com/toothsense-analysis-server/internal/metrics"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func testBreakerConfig() domain.CircuitBreakerConfig {
	return domain.CircuitBreakerConfig{
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		FailureThreshold: 2,
	}
}

func newTestInferenceClient(url string) *InferenceClient {
	return NewInferenceClient(domain.InferenceConfig{
		BaseURL:   url + "/",
		Timeout:   5 * time.Second,
		RateLimit: 100,
	}, testBreakerConfig(), testLogger(), metrics.NewRecorder("test"))
}

var testImage = domain.Image{
	Data:        []byte("\x89PNG\r\n\x1a\nfake"),
	Filename:    "molar.png",
	ContentType: "image/png",
}

func TestInferenceClient_AnalyzeRadiograph(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/analyze/xray", r.URL.Path)

		file, header, err := r.FormFile("image")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, testImage.Data, data)
		assert.Equal(t, "molar.png", header.Filename)
		assert.Equal(t, "image/png", header.Header.Get("Content-Type"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"predictions": [
				{"class": "Caries", "confidence": 0.65, "bbox": [1, 2, 3, 4]},
				{"class": "Crown", "confidence": 0.9}
			],
			"severity": "moderate",
			"processing_time": 1.2,
			"annotated_image": "aGVsbG8="
		}`)
	}))
	defer server.Close()

	client := newTestInferenceClient(server.URL)
	resp, err := client.AnalyzeRadiograph(context.Background(), testImage)

	require.NoError(t, err)
	require.Len(t, resp.Predictions, 2)
	assert.Equal(t, "Caries", resp.Predictions[0].Class)
	require.NotNil(t, resp.Predictions[0].Confidence)
	assert.Equal(t, 0.65, *resp.Predictions[0].Confidence)
	assert.Equal(t, []float64{1, 2, 3, 4}, resp.Predictions[0].BBox)
	assert.Equal(t, "moderate", resp.Severity)
	assert.Equal(t, "aGVsbG8=", resp.AnnotatedImage)
}

func TestInferenceClient_AnalyzeRadiograph_MissingPredictions(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantNil bool
	}{
		{name: "empty list", body: `{"predictions": [], "severity": "low"}`, wantNil: false},
		{name: "missing field", body: `{"severity": "low"}`, wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			resp, err := newTestInferenceClient(server.URL).AnalyzeRadiograph(context.Background(), testImage)
			require.NoError(t, err)
			assert.Equal(t, tt.wantNil, resp.Predictions == nil)
		})
	}
}

func TestInferenceClient_AnalyzeGumPhoto(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/analyze/gum", r.URL.Path)
		fmt.Fprint(w, `{"prediction": "Gingivitis", "confidence": 0.92, "severity": "low"}`)
	}))
	defer server.Close()

	resp, err := newTestInferenceClient(server.URL).AnalyzeGumPhoto(context.Background(), testImage)

	require.NoError(t, err)
	assert.Equal(t, "Gingivitis", resp.Prediction)
	require.NotNil(t, resp.Confidence)
	assert.Equal(t, 0.92, *resp.Confidence)
	assert.Equal(t, "low", resp.Severity)
}

func TestInferenceClient_Failures(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantCode   string
		wantStatus int
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "model unavailable", http.StatusServiceUnavailable)
			},
			wantCode:   domain.ErrTransportFailure,
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name: "invalid json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"prediction": `)
			},
			wantCode: domain.ErrMalformedResponse,
		},
		{
			name: "wrong field type",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"prediction": "Gingivitis", "confidence": "high"}`)
			},
			wantCode: domain.ErrMalformedResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			resp, err := newTestInferenceClient(server.URL).AnalyzeGumPhoto(context.Background(), testImage)

			require.Error(t, err)
			assert.Nil(t, resp)
			assert.Equal(t, tt.wantCode, domain.CodeOf(err))
			assert.Equal(t, tt.wantStatus, StatusCodeOf(err))
		})
	}
}

func TestInferenceClient_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := newTestInferenceClient(url).AnalyzeRadiograph(context.Background(), testImage)

	require.Error(t, err)
	assert.Equal(t, domain.ErrTransportFailure, domain.CodeOf(err))
}

func TestInferenceClient_CircuitBreakerOpens(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestInferenceClient(server.URL)
	for i := 0; i < 2; i++ {
		_, err := client.AnalyzeRadiograph(context.Background(), testImage)
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, client.BreakerState())

	_, err := client.AnalyzeRadiograph(context.Background(), testImage)

	require.Error(t, err)
	assert.Equal(t, domain.ErrTransportFailure, domain.CodeOf(err))
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), hits.Load(), "open breaker must not reach the backend")
}

func TestRecommendationClient_Recommend(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/recommendations/chatgpt", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req domain.RecommendationRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Gingivitis", req.Disease)
		assert.Equal(t, "low", req.Severity)
		assert.Equal(t, "Gum analysis showing Gingivitis with low severity", req.Context)
		assert.NotEmpty(t, req.Prompt)

		json.NewEncoder(w).Encode(domain.RecommendationResponse{Recommendations: "Floss daily"})
	}))
	defer server.Close()

	client := NewRecommendationClient(domain.RecommendationConfig{
		Enabled: true, BaseURL: server.URL, Timeout: 5 * time.Second, RateLimit: 100,
	}, testBreakerConfig(), testLogger(), nil)

	resp, err := client.Recommend(context.Background(), domain.RecommendationRequest{
		Disease:  "Gingivitis",
		Severity: "low",
		Context:  "Gum analysis showing Gingivitis with low severity",
		Prompt:   "As a dental professional...",
	})

	require.NoError(t, err)
	assert.Equal(t, "Floss daily", resp.Recommendations)
	assert.Equal(t, gobreaker.StateClosed, client.BreakerState())
}

func TestRecommendationClient_Failure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewRecommendationClient(domain.RecommendationConfig{
		BaseURL: server.URL, RateLimit: 100,
	}, testBreakerConfig(), nil, nil)

	resp, err := client.Recommend(context.Background(), domain.RecommendationRequest{Disease: "Caries"})

	require.Error(t, err)
	assert.Nil(t, resp)
	assert.Equal(t, http.StatusTooManyRequests, StatusCodeOf(err))
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestRecommendationCache_MemoryTier(t *testing.T) {
	cache, err := NewRecommendationCache(domain.CacheConfig{Enabled: true, MemorySize: 2, TTL: time.Hour}, testLogger())
	require.NoError(t, err)
	defer cache.Close()

	ctx := context.Background()
	key := CacheKey("Caries", "moderate", "X-ray analysis showing Caries with moderate severity")

	_, ok := cache.Get(ctx, key)
	assert.False(t, ok)

	cache.Set(ctx, key, "Fluoride treatment")
	got, ok := cache.Get(ctx, key)
	assert.True(t, ok)
	assert.Equal(t, "Fluoride treatment", got)

	stats := cache.Stats()
	assert.Equal(t, int64(1), stats.MemoryHits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestRecommendationCache_Expiry(t *testing.T) {
	cache, err := NewRecommendationCache(domain.CacheConfig{MemorySize: 4, TTL: 10 * time.Millisecond}, nil)
	require.NoError(t, err)

	cache.Set(context.Background(), "k", "v")
	time.Sleep(30 * time.Millisecond)

	_, ok := cache.Get(context.Background(), "k")
	assert.False(t, ok)
}

func TestRecommendationCache_RedisErrorIsMiss(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 200 * time.Millisecond})
	cache, err := newRecommendationCache(domain.CacheConfig{MemorySize: 4, TTL: time.Hour}, client, testLogger())
	require.NoError(t, err)
	defer cache.Close()

	_, ok := cache.Get(context.Background(), "missing")

	assert.False(t, ok)
	assert.Equal(t, int64(1), cache.Stats().RedisErrors)
}

func TestNewRecommendationCache_BadRedisURL(t *testing.T) {
	_, err := NewRecommendationCache(domain.CacheConfig{RedisURL: "not-a-url"}, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse Redis URL")
}

func TestCacheKey(t *testing.T) {
	a := CacheKey("Caries", "low", "ctx")
	assert.Equal(t, a, CacheKey("Caries", "low", "ctx"))
	assert.NotEqual(t, a, CacheKey("Caries", "high", "ctx"))
	assert.NotEqual(t, CacheKey("ab", "c", ""), CacheKey("a", "bc", ""))
}

func TestMockClients(t *testing.T) {
	mock := NewMockInferenceClient(0)

	xray, err := mock.AnalyzeRadiograph(context.Background(), testImage)
	require.NoError(t, err)
	assert.Len(t, xray.Predictions, 2)

	gum, err := mock.AnalyzeGumPhoto(context.Background(), testImage)
	require.NoError(t, err)
	assert.Equal(t, "Gingivitis", gum.Prediction)
	assert.Equal(t, int64(2), mock.Calls())

	rec, err := MockRecommendationClient{}.Recommend(context.Background(), domain.RecommendationRequest{Disease: "Gingivitis"})
	require.NoError(t, err)
	assert.Contains(t, rec.Recommendations, "Floss daily")
}

func TestMockInferenceClient_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMockInferenceClient(time.Second).AnalyzeGumPhoto(ctx, testImage)

	require.Error(t, err)
	assert.Equal(t, domain.ErrTransportFailure, domain.CodeOf(err))
}

func TestNewCollaborators(t *testing.T) {
	cfg := &domain.Config{
		Inference:      domain.InferenceConfig{Mock: true},
		Recommendation: domain.RecommendationConfig{Enabled: true},
		Cache:          domain.CacheConfig{Enabled: true, MemorySize: 8, TTL: time.Hour},
		CircuitBreaker: testBreakerConfig(),
	}

	c, err := NewCollaborators(cfg, testLogger(), nil)
	require.NoError(t, err)
	defer c.Close()

	assert.IsType(t, &MockInferenceClient{}, c.Inference)
	assert.IsType(t, MockRecommendationClient{}, c.Recommendation)
	assert.NotNil(t, c.Cache)

	health := c.Health()
	require.Len(t, health, 2)
	for _, h := range health {
		assert.True(t, h.Healthy)
		assert.Equal(t, "closed", h.State)
	}
}

func TestNewCollaborators_RecommendationDisabled(t *testing.T) {
	cfg := &domain.Config{
		Inference:      domain.InferenceConfig{BaseURL: "http://localhost:9", RateLimit: 1},
		CircuitBreaker: testBreakerConfig(),
	}

	c, err := NewCollaborators(cfg, nil, nil)
	require.NoError(t, err)

	assert.IsType(t, &InferenceClient{}, c.Inference)
	assert.Nil(t, c.Recommendation)
	assert.Nil(t, c.Cache)
	assert.Len(t, c.Health(), 1)
	assert.NoError(t, c.Close())
}
