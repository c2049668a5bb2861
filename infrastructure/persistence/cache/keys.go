// Package cache layers the in-process cache store over the patch
// repository and owns the invalidation rules that keep cached listings
// consistent with writes.
package cache

import (
	"crypto/md5"
	"encoding/json"
	"fmt"

	"patchshare-backend/application/ports"
	"patchshare-backend/domain/patch"
)

// Cache keys follow <shape>:<discriminator>:<optionsHash>. The options
// hash folds limit/cursor/sort into the key so every distinct page is its
// own entry.

func keyByID(id string) string {
	return "patch:id:" + id
}

func keyUser(username string, opts ports.ListOptions) string {
	return fmt.Sprintf("patch:user:%s:%s", username, hashOptions(opts))
}

func keyCategory(category patch.Category, opts ports.ListOptions) string {
	return fmt.Sprintf("patch:category:%s:%s", category, hashOptions(opts))
}

func keyTag(tag string, opts ports.ListOptions) string {
	return fmt.Sprintf("patch:tag:%s:%s", tag, hashOptions(opts))
}

func keyLatest(limit int, cursor string) string {
	return fmt.Sprintf("patch:latest:%s", hashOptions(ports.ListOptions{Limit: limit, Cursor: cursor}))
}

func keySearch(term string, opts ports.ListOptions) string {
	return fmt.Sprintf("patch:search:%s:%s", term, hashOptions(opts))
}

func keyTopRated(minRating float64, opts ports.ListOptions) string {
	return fmt.Sprintf("patch:toprated:%.2f:%s", minRating, hashOptions(opts))
}

func keyStats() string {
	return "patch:stats"
}

func keyUserCount(username string) string {
	return "patch:usercount:" + username
}

// hashOptions derives a short stable digest of the listing options
func hashOptions(opts ports.ListOptions) string {
	raw, err := json.Marshal(opts)
	if err != nil {
		return "default"
	}
	sum := md5.Sum(raw)
	return fmt.Sprintf("%x", sum)[:16]
}

// Invalidation tags group keys by what makes them stale.

func tagPatch(id string) string {
	return "patch:" + id
}

func tagUser(username string) string {
	return "user:" + username
}

func tagCategory(category patch.Category) string {
	return "category:" + string(category)
}

func tagTag(tag string) string {
	return "tag:" + tag
}

const (
	tagLatest   = "latest"
	tagSearch   = "search"
	tagTopRated = "toprated"
	tagStats    = "stats"
)
