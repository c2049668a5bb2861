// Package di wires the application together with google/wire.
package di

import (
	"context"
	"fmt"

	"patchshare-backend/application/ports"
	"patchshare-backend/application/services"
	"patchshare-backend/infrastructure/config"
	"patchshare-backend/infrastructure/messaging/eventbridge"
	cachestore "patchshare-backend/infrastructure/persistence/cache"
	"patchshare-backend/infrastructure/persistence/dynamodb"
	"patchshare-backend/interfaces/http/rest"
	"patchshare-backend/interfaces/http/rest/handlers"
	"patchshare-backend/pkg/auth"
	"patchshare-backend/pkg/cache"
	"patchshare-backend/pkg/observability"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscloudwatch "github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if parsed, err := zapcore.ParseLevel(cfg.LogLevel); err == nil {
		level = parsed
	}

	var zapCfg zap.Config
	if cfg.IsProduction() {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}

// ProvideAWSConfig creates AWS configuration
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
	)
}

// ProvideDynamoDBClient creates a DynamoDB client
func ProvideDynamoDBClient(awsCfg aws.Config) *awsdynamodb.Client {
	return awsdynamodb.NewFromConfig(awsCfg)
}

// ProvideEventBridgeClient creates an EventBridge client
func ProvideEventBridgeClient(awsCfg aws.Config) *awseventbridge.Client {
	return awseventbridge.NewFromConfig(awsCfg)
}

// ProvideCloudWatchClient creates a CloudWatch client
func ProvideCloudWatchClient(awsCfg aws.Config) *awscloudwatch.Client {
	return awscloudwatch.NewFromConfig(awsCfg)
}

// ProvideMetrics creates the metrics sink. When metrics are disabled the
// client is nil and every recording call becomes a no-op.
func ProvideMetrics(client *awscloudwatch.Client, cfg *config.Config, logger *zap.Logger) *observability.Metrics {
	namespace := fmt.Sprintf("Patchshare/%s", cfg.Environment)
	if !cfg.EnableMetrics {
		return observability.NewMetrics(namespace, nil, logger)
	}
	return observability.NewMetrics(namespace, client, logger)
}

// ProvideTracer creates the X-Ray tracer, or nil when tracing is off.
func ProvideTracer(cfg *config.Config) *observability.Tracer {
	if !cfg.EnableTracing {
		return nil
	}
	return observability.NewTracer("patchshare-api")
}

// ProvideCacheStore creates the shared in-process cache store
func ProvideCacheStore(cfg *config.Config, logger *zap.Logger) *cache.Store {
	return cache.NewStore(cache.StoreConfig{
		DefaultTTL:    cfg.CacheDefaultTTL,
		MaxSize:       cfg.CacheMaxEntries,
		SweepInterval: cfg.CacheSweepInterval,
	}, logger)
}

// ProvidePatchRepository creates the DynamoDB-backed patch repository
func ProvidePatchRepository(client *awsdynamodb.Client, cfg *config.Config, logger *zap.Logger) ports.PatchRepository {
	return dynamodb.NewPatchRepository(
		client,
		cfg.DynamoDBTable,
		cfg.IndexName,     // GSI1 for category browsing
		cfg.GSI2IndexName, // GSI2 for direct patch ID lookups
		logger,
	)
}

// ProvidePatchCache wraps the repository behind the cache-aside layer
func ProvidePatchCache(
	store *cache.Store,
	repo ports.PatchRepository,
	cfg *config.Config,
	logger *zap.Logger,
	metrics *observability.Metrics,
) *cachestore.PatchCache {
	ttls := cachestore.TTLConfig{
		ByID:     cfg.CacheTTLByID,
		Listing:  cfg.CacheTTLListing,
		Latest:   cfg.CacheTTLLatest,
		Search:   cfg.CacheTTLSearch,
		TopRated: cfg.CacheTTLTopRated,
		Stats:    cfg.CacheTTLStats,
	}
	return cachestore.NewPatchCache(store, repo, ttls, logger, metrics)
}

// ProvideEventBus creates the EventBridge publisher
func ProvideEventBus(client *awseventbridge.Client, cfg *config.Config, logger *zap.Logger) ports.EventBus {
	return eventbridge.NewPublisher(
		client,
		cfg.EventBusName,
		logger,
	)
}

// ProvidePatchService builds the application service. The cache layer is
// both the read path and the write-side invalidator, so reads go through
// the cache while writes always hit the repository directly.
func ProvidePatchService(
	repo ports.PatchRepository,
	patchCache *cachestore.PatchCache,
	bus ports.EventBus,
	logger *zap.Logger,
) *services.PatchService {
	return services.NewPatchService(repo, patchCache, bus, patchCache, logger)
}

// ProvideJWTValidator creates the token validator
func ProvideJWTValidator(cfg *config.Config) (*auth.JWTValidator, error) {
	secret := cfg.JWTSecret
	if secret == "" && !cfg.IsProduction() {
		secret = "local-development-secret"
	}

	return auth.NewJWTValidator(auth.JWTConfig{
		SigningMethod: "HS256",
		SecretKey:     secret,
		Issuer:        cfg.JWTIssuer,
	})
}

// ProvideIPRateLimiter creates the per-IP rate limiter
func ProvideIPRateLimiter(cfg *config.Config) *auth.IPRateLimiter {
	return auth.NewIPRateLimiter(cfg.RateLimitPerIP)
}

// ProvideUserRateLimiter creates the per-user rate limiter
func ProvideUserRateLimiter(cfg *config.Config) *auth.UserRateLimiter {
	return auth.NewUserRateLimiter(cfg.RateLimitPerUser)
}

// ProvidePatchHandler creates the patch HTTP handler
func ProvidePatchHandler(service *services.PatchService, logger *zap.Logger) *handlers.PatchHandler {
	return handlers.NewPatchHandler(service, logger)
}

// ProvideAdminHandler creates the cache admin HTTP handler
func ProvideAdminHandler(patchCache *cachestore.PatchCache, logger *zap.Logger) *handlers.AdminHandler {
	return handlers.NewAdminHandler(patchCache, logger)
}

// ProvideRouter assembles the HTTP router
func ProvideRouter(
	patchHandler *handlers.PatchHandler,
	adminHandler *handlers.AdminHandler,
	validator *auth.JWTValidator,
	ipLimiter *auth.IPRateLimiter,
	userLimiter *auth.UserRateLimiter,
	tracer *observability.Tracer,
	cfg *config.Config,
	logger *zap.Logger,
) *rest.Router {
	return rest.NewRouter(
		patchHandler,
		adminHandler,
		validator,
		ipLimiter,
		userLimiter,
		tracer,
		cfg.EnableCORS,
		logger,
	)
}
