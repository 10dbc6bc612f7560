//go:build arm64

package cpu

// Halt masks all exceptions and stops instruction execution.
func Halt()

// Relax hints to the core that it is inside a busy-wait loop.
func Relax()

// WaitForEvent suspends the core until an event or interrupt is signalled.
func WaitForEvent()

// SendEvent wakes up every core blocked in WaitForEvent.
func SendEvent()

// MaskExceptions masks interrupt, fast-interrupt, abort and debug
// exception delivery on the calling core.
func MaskExceptions()

// CleanDCacheRange cleans and invalidates the data cache for the given
// physical range so its contents reach the point of coherency.
func CleanDCacheRange(start, length uintptr)

// SyncICacheRange cleans the data cache to the point of unification and
// invalidates the instruction cache over the given range, making freshly
// written code fetchable.
func SyncICacheRange(start, length uintptr)

// SoftRestart masks all exceptions and branches to the given physical
// address. It never returns.
func SoftRestart(entry uint64)
