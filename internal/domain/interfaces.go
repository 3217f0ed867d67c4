package domain

import (
	"context"
)

// InferenceClient runs the opaque image inference backends. Implementations
// return *AnalysisError values coded TRANSPORT_FAILURE or MALFORMED_RESPONSE.
type InferenceClient interface {
	AnalyzeRadiograph(ctx context.Context, image Image) (*RawRadiographResponse, error)
	AnalyzeGumPhoto(ctx context.Context, image Image) (*RawGumPhotoResponse, error)
}

// RecommendationClient calls the recommendation collaborator.
type RecommendationClient interface {
	Recommend(ctx context.Context, req RecommendationRequest) (*RecommendationResponse, error)
}

// RecommendationCache stores recommendation texts by key. Errors are
// reported as misses by implementations.
type RecommendationCache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string)
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetServerConfig() *ServerConfig
	Reload() error
	Validate() error
	IsProduction() bool
	IsDevelopment() bool
}
