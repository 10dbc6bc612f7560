//go:build !arm64

package cpu

// Hosted stand-ins for the arm64 primitives so the kernel packages can be
// unit-tested on a development machine. Terminal operations panic instead
// of silently misbehaving; hint instructions degrade to no-ops.

// Halt stops instruction execution.
func Halt() {
	panic("cpu: Halt is only supported on arm64")
}

// Relax hints to the core that it is inside a busy-wait loop.
func Relax() {}

// WaitForEvent suspends the core until an event or interrupt is signalled.
func WaitForEvent() {}

// SendEvent wakes up every core blocked in WaitForEvent.
func SendEvent() {}

// MaskExceptions masks exception delivery on the calling core.
func MaskExceptions() {}

// CleanDCacheRange cleans and invalidates the data cache over a range.
func CleanDCacheRange(start, length uintptr) {}

// SyncICacheRange establishes instruction cache coherence over a range.
func SyncICacheRange(start, length uintptr) {}

// SoftRestart branches to the given physical address.
func SoftRestart(entry uint64) {
	panic("cpu: SoftRestart is only supported on arm64")
}
