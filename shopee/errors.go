package shopee

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/goliatone/go-marketsync/core"
)

// classify maps an upstream failure onto the error taxonomy.
func classify(statusCode int, code string, message string, path string, requestID string) error {
	code = strings.TrimSpace(code)
	lowered := strings.ToLower(code + " " + message)
	metadata := map[string]any{
		"path":        path,
		"status_code": statusCode,
	}
	if code != "" {
		metadata["upstream_error"] = code
	}
	if requestID != "" {
		metadata["request_id"] = requestID
	}
	text := fmt.Sprintf("shopee: %s failed", path)
	if code != "" || message != "" {
		text = fmt.Sprintf("shopee: %s failed: %s %s", path, code, strings.TrimSpace(message))
	}

	switch {
	case statusCode == http.StatusTooManyRequests || isThrottleCode(lowered):
		return core.NewError(core.ErrorRateLimited, text, metadata)
	case statusCode >= http.StatusInternalServerError,
		strings.Contains(lowered, "error_server"),
		strings.Contains(lowered, "error_inner"),
		strings.Contains(lowered, "error_busy"),
		strings.Contains(lowered, "system busy"):
		return core.NewError(core.ErrorUpstreamUnavailable, text, metadata)
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden,
		strings.Contains(lowered, "error_auth"),
		strings.Contains(lowered, "error_sign"),
		strings.Contains(lowered, "error_permission"),
		strings.Contains(lowered, "invalid_access_token"),
		strings.Contains(lowered, "invalid_acceess_token"),
		strings.Contains(lowered, "invalid_partner"),
		strings.Contains(lowered, "wrong sign"):
		return core.NewError(core.ErrorAuthRejected, text, metadata)
	case strings.Contains(lowered, "error_param"), statusCode == http.StatusBadRequest:
		return core.NewError(core.ErrorBadInput, text, metadata)
	case strings.Contains(lowered, "error_not_found"), statusCode == http.StatusNotFound:
		return core.NewError(core.ErrorNotFound, text, metadata)
	default:
		return core.NewError(core.ErrorUpstreamRejected, text, metadata)
	}
}

func isThrottleCode(lowered string) bool {
	return strings.Contains(lowered, "too_many") ||
		strings.Contains(lowered, "too many") ||
		strings.Contains(lowered, "rate_limit") ||
		strings.Contains(lowered, "rate limit")
}

func transportError(err error, path string) error {
	return core.WrapError(err, core.ErrorUpstreamUnavailable, fmt.Sprintf("shopee: %s request failed", path), map[string]any{
		"path": path,
	})
}
