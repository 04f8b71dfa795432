package instance

import "os"

// GetID returns the process instance identifier. RSVP_INSTANCE_ID wins, then
// the container hostname, then a fixed local default.
func GetID() string {
	if id := os.Getenv("RSVP_INSTANCE_ID"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local-0"
}
