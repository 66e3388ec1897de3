package retry

import (
	"log"
	"sync"
)

var (
	globalExec *Executor
	globalOnce sync.Once
)

// DefaultExecutor returns the shared, lazily-initialized default
// executor. Prefer constructing an Executor at application start-up
// and passing it explicitly; the global exists for call sites that
// have no injection seam.
func DefaultExecutor() *Executor {
	globalOnce.Do(func() {
		if globalExec == nil {
			globalExec = NewDefaultExecutor()
		}
	})
	return globalExec
}

// SetGlobal configures the default executor. It must be called before
// DefaultExecutor is first used (i.e. at startup); afterwards it logs
// a warning and does nothing.
func SetGlobal(exec *Executor) {
	if exec == nil {
		return
	}

	if globalExec != nil {
		log.Printf("recall: SetGlobal called after global executor already initialized; ignoring")
		return
	}

	globalOnce.Do(func() {
		globalExec = exec
	})
}
