// Package testing flips the application into test mode when blank-imported
// from a _test.go file, so binaries and helpers skip external side effects.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("CONFORMAPRO_TEST_MODE", "1")
		if os.Getenv("SUPABASE_URL") == "" {
			_ = os.Setenv("SUPABASE_URL", "http://127.0.0.1:0")
		}
	})
}

func init() {
	ensureTestMode()
}

// TestMain can be reused by packages that want the same setup.
func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
