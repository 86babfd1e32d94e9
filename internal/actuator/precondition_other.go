//go:build !linux

package actuator

import "context"

// DiskSpace is a no-op outside Linux.
func DiskSpace(string, float64) Precondition {
	return func(context.Context) error { return nil }
}

// MemoryAvailable is a no-op outside Linux.
func MemoryAvailable(float64) Precondition {
	return func(context.Context) error { return nil }
}
