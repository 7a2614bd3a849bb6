// Package guard flips the process into test mode when imported, so binaries
// compiled into tests skip their runtime side effects.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("HRDASH_TEST_MODE") == "" {
			_ = os.Setenv("HRDASH_TEST_MODE", "1")
		}
	})
}
