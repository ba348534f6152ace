package httpapi

import "analysisd/internal/analysis"

// maxBodyBytes controls the maximum allowed request body size for JSON endpoints.
// Default remains 1 MiB.
var maxBodyBytes int64 = 1 << 20

// SetMaxBodyBytes allows configuring the maximum request body size.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		maxBodyBytes = 1 << 20
		return
	}
	maxBodyBytes = n
}

// partialBuffer is the per-request partial notification buffer. Partials that
// do not fit while the client is slow are dropped; the terminal line never is.
var partialBuffer = analysis.DefaultPartialBuffer

// SetPartialBuffer sets the per-request partial buffer (<=0 restores the default).
func SetPartialBuffer(n int) {
	if n <= 0 {
		partialBuffer = analysis.DefaultPartialBuffer
		return
	}
	partialBuffer = n
}

// CORS configuration (opt-in). If disabled, no CORS middleware is added.
var (
	corsEnabled        bool
	corsAllowedOrigins []string
	corsAllowedMethods []string
	corsAllowedHeaders []string
)

// SetCORSOptions configures CORS behavior for the HTTP server.
func SetCORSOptions(enabled bool, origins, methods, headers []string) {
	corsEnabled = enabled
	corsAllowedOrigins = append([]string(nil), origins...)
	corsAllowedMethods = append([]string(nil), methods...)
	corsAllowedHeaders = append([]string(nil), headers...)
}
