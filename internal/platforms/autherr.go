package platforms

import (
	"net/http"
	"strings"

	"github.com/maheshrc27/postbridge/internal/models"
)

// Auth-failure message substrings per platform, matched case-insensitively
// against response bodies. A 401/403 status alone is already classified as
// an auth error; the substrings catch platforms that bury token problems
// inside 200/400 responses.
var authErrorHints = map[string][]string{
	models.PlatformTwitter:   {"unauthorized", "invalid or expired token"},
	models.PlatformLinkedIn:  {"expired_token", "invalid_token", "revoked_access_token"},
	models.PlatformTiktok:    {"access_token_invalid", "access_token_expired", "scope_not_authorized"},
	models.PlatformInstagram: {"error validating access token", "session has expired", "oauthexception"},
	models.PlatformYoutube:   {"invalid_grant", "invalid credentials", "authError"},
	models.PlatformBluesky:   {"expiredtoken", "invalidtoken", "authenticationrequired"},
	models.PlatformMastodon:  {"the access token is invalid", "the access token was revoked"},
	models.PlatformDevto:     {"invalid api key", "unauthorized"},
}

// isAuthError classifies a platform response as a credential failure.
func isAuthError(platform string, statusCode int, body string) bool {
	if statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden {
		return true
	}
	lowered := strings.ToLower(body)
	for _, hint := range authErrorHints[platform] {
		if strings.Contains(lowered, strings.ToLower(hint)) {
			return true
		}
	}
	return false
}
