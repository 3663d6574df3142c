package config

import "sync"

// RuntimeConfig stores configuration set at runtime via CLI flags.
// These values are not persisted to config files.
type RuntimeConfig struct {
	mu        sync.RWMutex
	allowExec bool
}

var globalRuntime = &RuntimeConfig{}

// SetAllowExec enables or disables the exec interpreter backend.
// Running a host python3 is disabled by default.
func SetAllowExec(allow bool) {
	globalRuntime.mu.Lock()
	defer globalRuntime.mu.Unlock()
	globalRuntime.allowExec = allow
}

// IsExecAllowed returns whether the exec backend may be used.
func IsExecAllowed() bool {
	globalRuntime.mu.RLock()
	defer globalRuntime.mu.RUnlock()
	return globalRuntime.allowExec
}
