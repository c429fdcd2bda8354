package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// KeyPrefix namespaces every key written by the cache.
const KeyPrefix = "orc"

// CacheKey represents a unique identifier for a cached OpenReview response.
type CacheKey struct {
	// Endpoint is the API path (e.g., "/notes")
	Endpoint string

	// QueryParams are the query parameters (e.g., {"forum": "abc123"})
	QueryParams url.Values
}

// Cache key kinds, used as metric labels.
const (
	KindListing = "listing"
	KindForum   = "forum"
	KindOther   = "other"
)

// Kind classifies the request: a submission listing page, a forum, or
// anything else.
func (k CacheKey) Kind() string {
	switch {
	case k.QueryParams.Get("forum") != "":
		return KindForum
	case k.QueryParams.Get("invitation") != "":
		return KindListing
	}
	return KindOther
}

// String generates a deterministic cache key string.
// Format: orc:endpoint:query1=val1:query2=val2
//
// Example:
//
//	orc:notes:invitation=ICLR.cc/2025/Conference/-/Submission:limit=500:offset=0
func (k CacheKey) String() string {
	parts := []string{KeyPrefix}

	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	if len(k.QueryParams) > 0 {
		queryKeys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			values := append([]string(nil), k.QueryParams[key]...)
			sort.Strings(values)
			parts = append(parts, fmt.Sprintf("%s=%s", key, strings.Join(values, ",")))
		}
	}

	return strings.Join(parts, ":")
}
