// Package env reads process settings that live outside the RSVP_ config
// prefix, like the PORT injected by the container platform.
package env

import (
	"os"
	"strings"
)

// Get returns the first non-blank value among keys, or fallback.
func Get(fallback string, keys ...string) string {
	for _, key := range keys {
		if val := strings.TrimSpace(os.Getenv(key)); val != "" {
			return val
		}
	}
	return fallback
}
