package app

import (
	"log/slog"
	"os"
)

// TestModeEnv is set by the blank-imported testing package so binaries and
// integration helpers never dial real infrastructure under go test.
const TestModeEnv = "ODYSSEY_TEST_MODE"

// InTestMode reports whether the process runs under the test harness.
func InTestMode() bool {
	return os.Getenv(TestModeEnv) == "1"
}

// SkipStartup logs and reports true when a binary must not start its
// listeners because it runs in test mode.
func SkipStartup(component string) bool {
	if !InTestMode() {
		return false
	}
	slog.Default().Info("test mode detected, skipping startup", slog.String("component", component))
	return true
}
