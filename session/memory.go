package session

import "runtime"

// currentHeapAlloc reads the process's current heap allocation in bytes.
// It is intentionally simple rather than cheap: runtime.ReadMemStats
// triggers a brief stop-the-world style sweep of mcache stats, so callers that need
// higher-frequency sampling should supply their own sampler via
// WithMemorySampler (e.g. reading smaps or a container cgroup counter).
func currentHeapAlloc() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.Alloc
}
