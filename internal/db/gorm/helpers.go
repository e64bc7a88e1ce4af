// Package gorm provides GORM-based database operations for semdedup.
package gorm

import (
	"net/http"
	"strconv"
)

// ParseLimitParam parses the "limit" query parameter from an HTTP request.
// Returns defaultLimit if the parameter is missing or invalid, and caps at maxLimit.
func ParseLimitParam(r *http.Request, defaultLimit, maxLimit int) int {
	limit := defaultLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if maxLimit > 0 && limit > maxLimit {
		limit = maxLimit
	}
	return limit
}
