// Package guard flips the service into test mode before any package under
// test can touch runtime side effects. Import it for side effects only.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("PULSEFIT_IAM_TEST_MODE") == "" {
			_ = os.Setenv("PULSEFIT_IAM_TEST_MODE", "1")
		}
	})
}
