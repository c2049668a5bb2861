package handlers

import (
	"net/http"
	"regexp"

	"patchshare-backend/infrastructure/persistence/cache"
	"patchshare-backend/pkg/common"

	"go.uber.org/zap"
)

// AdminHandler exposes the cache maintenance surface. Every route behind
// it requires the admin role.
type AdminHandler struct {
	cache  *cache.PatchCache
	logger *zap.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(patchCache *cache.PatchCache, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		cache:  patchCache,
		logger: logger,
	}
}

// CacheStats handles GET /admin/cache/stats
func (h *AdminHandler) CacheStats(w http.ResponseWriter, r *http.Request) {
	common.RespondJSON(w, http.StatusOK, h.cache.Metrics())
}

// ClearCache handles POST /admin/cache/clear
func (h *AdminHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	dropped := h.cache.ClearAll()
	h.logger.Info("cache cleared by admin", zap.Int("dropped", dropped))

	common.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"dropped": dropped,
	})
}

// ClearCachePattern handles POST /admin/cache/clear-pattern
func (h *AdminHandler) ClearCachePattern(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Pattern string `json:"pattern"`
	}
	if err := common.ParseJSONBody(r, &body, maxBodyBytes); err != nil || body.Pattern == "" {
		common.RespondError(w, http.StatusBadRequest, common.StandardErrorCodes.BadRequest, "A 'pattern' field is required")
		return
	}

	re, err := regexp.Compile(body.Pattern)
	if err != nil {
		common.RespondError(w, http.StatusBadRequest, common.StandardErrorCodes.ValidationError, "Invalid regular expression")
		return
	}

	dropped := h.cache.ClearPattern(re)
	h.logger.Info("cache pattern cleared by admin",
		zap.String("pattern", body.Pattern),
		zap.Int("dropped", dropped),
	)

	common.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"pattern": body.Pattern,
		"dropped": dropped,
	})
}

// InvalidateTag handles POST /admin/cache/invalidate-tag
func (h *AdminHandler) InvalidateTag(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Tag string `json:"tag"`
	}
	if err := common.ParseJSONBody(r, &body, maxBodyBytes); err != nil || body.Tag == "" {
		common.RespondError(w, http.StatusBadRequest, common.StandardErrorCodes.BadRequest, "A 'tag' field is required")
		return
	}

	dropped := h.cache.InvalidateTag(body.Tag)

	common.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"tag":     body.Tag,
		"dropped": dropped,
	})
}

// WarmupCache handles POST /admin/cache/warmup
func (h *AdminHandler) WarmupCache(w http.ResponseWriter, r *http.Request) {
	h.cache.Warmup(r.Context())
	common.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "warmed",
	})
}
