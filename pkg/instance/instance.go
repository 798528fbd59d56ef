package instance

import "os"

const defaultID = "worker-0"

// GetID reports which worker replica this process is, from WORKER_ID.
// Logged by the long-running consumers so replicas can be told apart.
func GetID() string {
	if id := os.Getenv("WORKER_ID"); id != "" {
		return id
	}
	return defaultID
}
