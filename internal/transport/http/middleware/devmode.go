package middleware

import "net/http"

const (
	DevModeHeader       = "X-Developer-Mode"
	DevModeBannerHeader = "X-Developer-Mode-Banner"
	devModeEnabled      = "enabled"
)

// DevMode rejects requests that do not opt in with "X-Developer-Mode: enabled"
// and marks every response so clients can show the developer banner.
func DevMode(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(DevModeBannerHeader, "Developer mode: identity verification is skipped")
		if r.Header.Get(DevModeHeader) != devModeEnabled {
			writeJSONError(w, http.StatusForbidden, "developer mode not enabled for this request")
			return
		}
		next.ServeHTTP(w, r)
	})
}
