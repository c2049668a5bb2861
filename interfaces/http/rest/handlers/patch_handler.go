// Package handlers contains the chi HTTP handlers for the patch API.
package handlers

import (
	"net/http"
	"strconv"

	"patchshare-backend/application/ports"
	"patchshare-backend/application/services"
	"patchshare-backend/domain/patch"
	"patchshare-backend/pkg/auth"
	"patchshare-backend/pkg/common"
	pkgerrors "patchshare-backend/pkg/errors"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20 // 1 MiB

// PatchHandler handles patch CRUD and browsing requests
type PatchHandler struct {
	service *services.PatchService
	logger  *zap.Logger
}

// NewPatchHandler creates a new PatchHandler
func NewPatchHandler(service *services.PatchService, logger *zap.Logger) *PatchHandler {
	return &PatchHandler{
		service: service,
		logger:  logger,
	}
}

// CreatePatch handles POST /patches
func (h *PatchHandler) CreatePatch(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		common.RespondError(w, http.StatusUnauthorized, common.StandardErrorCodes.Unauthorized, "Authentication required")
		return
	}

	var input services.CreatePatchInput
	if err := common.ParseJSONBody(r, &input, maxBodyBytes); err != nil {
		common.RespondError(w, http.StatusBadRequest, common.StandardErrorCodes.BadRequest, "Invalid request body")
		return
	}

	p, err := h.service.Create(r.Context(), user.Username, input)
	if err != nil {
		h.respondError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusCreated, p)
}

// GetPatch handles GET /patches/{patchID}
func (h *PatchHandler) GetPatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "patchID")
	requester, _ := common.GetUsername(r.Context())

	p, err := h.service.GetPatch(r.Context(), requester, id)
	if err != nil {
		h.respondError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, p)
}

// UpdatePatch handles PUT /patches/{patchID}
func (h *PatchHandler) UpdatePatch(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		common.RespondError(w, http.StatusUnauthorized, common.StandardErrorCodes.Unauthorized, "Authentication required")
		return
	}

	var input services.UpdatePatchInput
	if err := common.ParseJSONBody(r, &input, maxBodyBytes); err != nil {
		common.RespondError(w, http.StatusBadRequest, common.StandardErrorCodes.BadRequest, "Invalid request body")
		return
	}

	p, err := h.service.Update(r.Context(), user.Username, chi.URLParam(r, "patchID"), input)
	if err != nil {
		h.respondError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, p)
}

// DeletePatch handles DELETE /patches/{patchID}
func (h *PatchHandler) DeletePatch(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		common.RespondError(w, http.StatusUnauthorized, common.StandardErrorCodes.Unauthorized, "Authentication required")
		return
	}

	if err := h.service.Delete(r.Context(), user.Username, chi.URLParam(r, "patchID")); err != nil {
		h.respondError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RatePatch handles POST /patches/{patchID}/ratings
func (h *PatchHandler) RatePatch(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.GetUserFromContext(r.Context()); err != nil {
		common.RespondError(w, http.StatusUnauthorized, common.StandardErrorCodes.Unauthorized, "Authentication required")
		return
	}

	var body struct {
		Stars int `json:"stars"`
	}
	if err := common.ParseJSONBody(r, &body, maxBodyBytes); err != nil {
		common.RespondError(w, http.StatusBadRequest, common.StandardErrorCodes.BadRequest, "Invalid request body")
		return
	}

	p, err := h.service.Rate(r.Context(), chi.URLParam(r, "patchID"), body.Stars)
	if err != nil {
		h.respondError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"id":            p.ID,
		"averageRating": p.AverageRating(),
		"ratingCount":   p.RatingCount,
	})
}

// DownloadPatch handles POST /patches/{patchID}/download. The response
// carries the full parameter set; the download counter is bumped as a
// side effect.
func (h *PatchHandler) DownloadPatch(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.RecordDownload(r.Context(), chi.URLParam(r, "patchID"))
	if err != nil {
		h.respondError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, p)
}

// ListLatest handles GET /patches
func (h *PatchHandler) ListLatest(w http.ResponseWriter, r *http.Request) {
	params := common.ExtractListParams(r)

	page, err := h.service.Latest(r.Context(), params.Limit, params.Cursor)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondPage(w, r, page)
}

// ListByUser handles GET /users/{username}/patches
func (h *PatchHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	requester, _ := common.GetUsername(r.Context())

	page, err := h.service.ListByUser(r.Context(), requester, username, listOptions(r))
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondPage(w, r, page)
}

// CountByUser handles GET /users/{username}/patches/count
func (h *PatchHandler) CountByUser(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	count, err := h.service.CountByUser(r.Context(), username)
	if err != nil {
		h.respondError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"username": username,
		"count":    count,
	})
}

// ListByCategory handles GET /categories/{category}/patches
func (h *PatchHandler) ListByCategory(w http.ResponseWriter, r *http.Request) {
	category := patch.Category(chi.URLParam(r, "category"))

	page, err := h.service.ListByCategory(r.Context(), category, listOptions(r))
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondPage(w, r, page)
}

// ListCategories handles GET /categories
func (h *PatchHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	common.RespondJSON(w, http.StatusOK, patch.Categories)
}

// ListByTag handles GET /tags/{tag}/patches
func (h *PatchHandler) ListByTag(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.ListByTag(r.Context(), chi.URLParam(r, "tag"), listOptions(r))
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondPage(w, r, page)
}

// Search handles GET /search?q=term
func (h *PatchHandler) Search(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("q")
	if term == "" {
		common.RespondError(w, http.StatusBadRequest, common.StandardErrorCodes.BadRequest, "Query parameter 'q' is required")
		return
	}

	page, err := h.service.Search(r.Context(), term, listOptions(r))
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondPage(w, r, page)
}

// TopRated handles GET /patches/top-rated?min_rating=4.0
func (h *PatchHandler) TopRated(w http.ResponseWriter, r *http.Request) {
	minRating := 4.0
	if raw := r.URL.Query().Get("min_rating"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed < 0 || parsed > 5 {
			common.RespondError(w, http.StatusBadRequest, common.StandardErrorCodes.BadRequest, "min_rating must be between 0 and 5")
			return
		}
		minRating = parsed
	}

	page, err := h.service.TopRated(r.Context(), minRating, listOptions(r))
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondPage(w, r, page)
}

// GetStats handles GET /stats
func (h *PatchHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, stats)
}

func (h *PatchHandler) respondPage(w http.ResponseWriter, r *http.Request, page *patch.Page) {
	common.RespondWithMeta(w, http.StatusOK, page.Items, &common.MetaInfo{
		RequestID:  common.ExtractRequestID(r),
		NextCursor: page.NextCursor,
		Count:      page.Count,
	})
}

func (h *PatchHandler) respondError(w http.ResponseWriter, err error) {
	if appErr := pkgerrors.GetAppError(err); appErr != nil {
		status := appErr.HTTPStatus
		if status == 0 {
			status = http.StatusInternalServerError
		}
		if status >= 500 {
			h.logger.Error("request failed", zap.Error(err))
		}
		common.RespondError(w, status, string(appErr.Type), appErr.Message)
		return
	}

	h.logger.Error("unexpected error", zap.Error(err))
	common.RespondError(w, http.StatusInternalServerError, common.StandardErrorCodes.InternalError, "Internal server error")
}

func listOptions(r *http.Request) ports.ListOptions {
	params := common.ExtractListParams(r)
	return ports.ListOptions{
		Limit:  params.Limit,
		Cursor: params.Cursor,
		SortBy: params.SortBy,
		Order:  params.Order,
	}
}
