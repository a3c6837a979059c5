package instance

import (
	"os"

	"github.com/angelmondragon/payrecon-backend/pkg/env"
)

// GetID returns the identifier this process claims job leases under.
// WORKER_ID wins, then the hostname, then a static fallback.
func GetID() string {
	if id := env.Get("WORKER_ID", ""); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "worker-0"
}
