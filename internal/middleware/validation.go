package middleware

import (
	"errors"
	"net/http"
	"unicode/utf8"
)

// ValidateMessageContent validates inbound message text.
func ValidateMessageContent(content string) error {
	if len(content) == 0 {
		return errors.New("content cannot be empty")
	}
	if len(content) > 100000 { // ~100KB limit
		return errors.New("content exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	return nil
}

// ValidateTenantID validates a tenant ID.
func ValidateTenantID(id string) error {
	if len(id) == 0 {
		return errors.New("tenant ID cannot be empty")
	}
	if len(id) > 64 {
		return errors.New("tenant ID exceeds maximum length")
	}
	return nil
}

// ValidateStoreName validates a store display name.
func ValidateStoreName(name string) error {
	if len(name) == 0 {
		return errors.New("store name cannot be empty")
	}
	if len(name) > 256 {
		return errors.New("store name exceeds maximum length")
	}
	if !utf8.ValidString(name) {
		return errors.New("store name must be valid UTF-8")
	}
	return nil
}

// ValidateOwnerID validates a messaging platform user ID.
func ValidateOwnerID(id string) error {
	if len(id) == 0 {
		return errors.New("owner ID cannot be empty")
	}
	if len(id) > 64 {
		return errors.New("owner ID exceeds maximum length")
	}
	return nil
}

// SecurityHeaders sets standard security response headers.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}
