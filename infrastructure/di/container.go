package di

import (
	"patchshare-backend/application/ports"
	"patchshare-backend/application/services"
	"patchshare-backend/infrastructure/config"
	cachestore "patchshare-backend/infrastructure/persistence/cache"
	"patchshare-backend/interfaces/http/rest"
	"patchshare-backend/pkg/auth"
	"patchshare-backend/pkg/cache"
	"patchshare-backend/pkg/observability"

	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"
)

// Container holds all application dependencies
type Container struct {
	Config       *config.Config
	Logger       *zap.Logger
	DynamoDB     *awsdynamodb.Client
	Store        *cache.Store
	PatchRepo    ports.PatchRepository
	PatchCache   *cachestore.PatchCache
	EventBus     ports.EventBus
	PatchService *services.PatchService
	Validator    *auth.JWTValidator
	IPLimiter    *auth.IPRateLimiter
	UserLimiter  *auth.UserRateLimiter
	Metrics      *observability.Metrics
	Tracer       *observability.Tracer
	Router       *rest.Router
}

// Shutdown releases background resources: the cache sweeper stops and
// buffered log entries are flushed.
func (c *Container) Shutdown() {
	if c.Store != nil {
		c.Store.Stop()
	}
	if c.Logger != nil {
		_ = c.Logger.Sync()
	}
}
