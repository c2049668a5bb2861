package common

import (
	"net/http"
	"strconv"
)

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// ListParams represents cursor-based listing parameters. Cursors are
// opaque tokens produced by the repository, never inspected here.
type ListParams struct {
	Limit  int    `json:"limit"`
	Cursor string `json:"cursor,omitempty"`
	SortBy string `json:"sort_by,omitempty"`
	Order  string `json:"order,omitempty"`
}

// DefaultListParams returns default listing parameters
func DefaultListParams() ListParams {
	return ListParams{
		Limit: DefaultPageLimit,
		Order: "desc",
	}
}

// ExtractListParams extracts listing parameters from the request query.
// Out-of-range limits are clamped rather than rejected.
func ExtractListParams(r *http.Request) ListParams {
	params := DefaultListParams()

	if limit := r.URL.Query().Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil && n > 0 {
			if n > MaxPageLimit {
				n = MaxPageLimit
			}
			params.Limit = n
		}
	}

	if cursor := r.URL.Query().Get("cursor"); cursor != "" {
		params.Cursor = cursor
	}

	if sort := r.URL.Query().Get("sort"); sort != "" {
		params.SortBy = sort
	}

	if order := r.URL.Query().Get("order"); order == "asc" || order == "desc" {
		params.Order = order
	}

	return params
}
