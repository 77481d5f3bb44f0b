// Package testing switches the process into test mode when imported by a
// test binary. Commands check the flag and skip startup.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

// testDefaults are applied only when the variable is unset, so a developer
// can still point tests at a real database.
var testDefaults = map[string]string{
	"DATA_SOURCE": "memory",
	"LOG_LEVEL":   "warn",
}

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("FINCORE_TEST_MODE", "1")
		for key, value := range testDefaults {
			if _, ok := os.LookupEnv(key); !ok {
				_ = os.Setenv(key, value)
			}
		}
	})
}

func init() {
	ensureTestMode()
}

// TestMain runs m with test mode enabled.
func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
