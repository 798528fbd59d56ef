package env

import "os"

// Get reads key from the environment, falling back when unset or empty.
// For bootstrap reads that happen before the typed config is loaded.
func Get(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
