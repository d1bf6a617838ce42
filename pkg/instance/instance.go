package instance

import (
	"os"
	"strings"
)

// GetID identifies this process in logs and lock ownership: VOUCHR_INSTANCE_ID,
// then the hostname, then a fixed fallback.
func GetID() string {
	if id := strings.TrimSpace(os.Getenv("VOUCHR_INSTANCE_ID")); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "vouchr-0"
}
