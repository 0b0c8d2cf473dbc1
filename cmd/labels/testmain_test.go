package main

import (
	"os"
	"testing"
)

// TestMain clears the database and server environment so tests never reach
// a real tog deployment configured on the host.
func TestMain(m *testing.M) {
	for _, key := range []string{
		"DATABASE_URL", "TOGDB_HOST", "TOGDB_PORT", "TOGDB_USER", "TOGDB_PASS", "TOGDB_DB",
		"DATASET_SERVER_URL", "LOG_LEVEL",
	} {
		_ = os.Unsetenv(key)
	}
	os.Exit(m.Run())
}
