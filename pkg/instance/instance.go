package instance

import (
	"os"
	"strings"
)

// GetID identifies this worker process in logs. STOCKHOLD_WORKER_ID wins, then
// the hostname (the pod name on Kubernetes).
func GetID() string {
	if id := strings.TrimSpace(os.Getenv("STOCKHOLD_WORKER_ID")); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "worker-0"
}
