//go:build !linux

package subproc

// UnbindCores is a no-op where thread affinity isn't managed by the worker.
func UnbindCores() error {
	return nil
}
