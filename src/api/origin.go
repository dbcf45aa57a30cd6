package api

import (
	"net/http"
	"strings"
)

// RequestHeader must accompany every mutating request. Browsers cannot send
// it cross-origin without a preflight, which the origin check then rejects.
const RequestHeader = "X-WatchPoint"

// Origins is the set of browser origins allowed to call the API. Requests
// without an Origin header (CLI, the host's backend) are always allowed.
type Origins struct {
	allowed map[string]struct{}
}

// NewOrigins builds an allow-list. Entries are compared without a trailing
// slash and case-insensitively.
func NewOrigins(list []string) *Origins {
	o := &Origins{allowed: make(map[string]struct{}, len(list))}
	for _, v := range list {
		if v = normalizeOrigin(v); v != "" {
			o.allowed[v] = struct{}{}
		}
	}
	return o
}

// Allowed reports whether origin may call the API.
func (o *Origins) Allowed(origin string) bool {
	if origin == "" {
		return true
	}
	if o == nil {
		return false
	}
	_, ok := o.allowed[normalizeOrigin(origin)]
	return ok
}

func normalizeOrigin(v string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(v), "/"))
}

func mutating(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}
