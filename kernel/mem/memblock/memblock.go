// Package memblock implements the boot-time physical memory region
// registry. It tracks the set of ranges the system recognizes as RAM plus
// the set of kind-tagged reserved ranges that must be excluded from
// general allocation.
//
// The registry is backed by fixed-capacity arrays so it can operate before
// any allocator exists. It is populated by a strictly sequential pass on
// the boot core and is immutable afterwards, so no locking is required.
package memblock

import (
	"github.com/openeuler-mirror/summer2021-26/kernel"
	"github.com/openeuler-mirror/summer2021-26/kernel/kfmt"
)

// maxRegions bounds the number of discontiguous ranges each list can
// track. Firmware maps on supported platforms stay well below this.
const maxRegions = 128

// Kind tags the purpose of a reserved region.
type Kind uint8

const (
	// KindReserved marks a generic reservation (kernel image, firmware
	// tables and similar).
	KindReserved Kind = iota

	// KindCrashCapture marks the region holding the crash-dump capture
	// data consumed by a dump kernel.
	KindCrashCapture

	// KindQuickKexec marks the staging region for the fast-reboot
	// kernel image.
	KindQuickKexec

	// KindCorePark marks the per-core parking slots.
	KindCorePark
)

// String implements fmt.Stringer for Kind.
func (k Kind) String() string {
	switch k {
	case KindReserved:
		return "reserved"
	case KindCrashCapture:
		return "crash-capture"
	case KindQuickKexec:
		return "quick-kexec"
	case KindCorePark:
		return "core-park"
	default:
		return "unknown"
	}
}

// Region describes a physical address range and, for reserved regions,
// the purpose it was set aside for.
type Region struct {
	Base uint64
	Size uint64
	Kind Kind
}

// End returns the first address past the region.
func (r Region) End() uint64 {
	return r.Base + r.Size
}

var errRegionListFull = &kernel.Error{Module: "memblock", Message: "region list is full"}

// regionList is a fixed-capacity list of regions kept sorted by base
// address. Inserting merges regions of the same kind that touch or
// overlap.
type regionList struct {
	count   int
	regions [maxRegions]Region
}

func (l *regionList) insert(base, size uint64, kind Kind) *kernel.Error {
	if size == 0 {
		return nil
	}
	if l.count == maxRegions {
		return errRegionListFull
	}

	at := 0
	for ; at < l.count; at++ {
		if base < l.regions[at].Base {
			break
		}
	}

	copy(l.regions[at+1:l.count+1], l.regions[at:l.count])
	l.regions[at] = Region{Base: base, Size: size, Kind: kind}
	l.count++

	// Coalesce neighbours of the same kind that touch or overlap.
	for i := 0; i < l.count-1; {
		cur, next := &l.regions[i], &l.regions[i+1]
		if cur.Kind != next.Kind || cur.End() < next.Base {
			i++
			continue
		}

		if next.End() > cur.End() {
			cur.Size = next.End() - cur.Base
		}
		copy(l.regions[i+1:l.count-1], l.regions[i+2:l.count])
		l.count--
	}

	return nil
}

func (l *regionList) remove(base, size uint64) *kernel.Error {
	end := base + size

	for i := 0; i < l.count; {
		r := &l.regions[i]

		switch {
		case r.End() <= base || r.Base >= end:
			// No intersection.
			i++
		case r.Base >= base && r.End() <= end:
			// Fully covered; drop the region.
			copy(l.regions[i:l.count-1], l.regions[i+1:l.count])
			l.count--
		case r.Base < base && r.End() > end:
			// The removed range punches a hole in the middle;
			// keep the head in place and insert the tail.
			tailBase, tailEnd, kind := end, r.End(), r.Kind
			r.Size = base - r.Base
			return l.insert(tailBase, tailEnd-tailBase, kind)
		case r.Base < base:
			// Trim the tail.
			r.Size = base - r.Base
			i++
		default:
			// Trim the head.
			r.Size = r.End() - end
			r.Base = end
			i++
		}
	}

	return nil
}

// overlaps returns true if [base, base+size) intersects any region in the
// list.
func (l *regionList) overlaps(base, size uint64) bool {
	end := base + size
	for i := 0; i < l.count; i++ {
		if l.regions[i].Base < end && l.regions[i].End() > base {
			return true
		}
	}
	return false
}

// contains returns true if [base, base+size) lies entirely within a
// single region of the list.
func (l *regionList) contains(base, size uint64) bool {
	end := base + size
	for i := 0; i < l.count; i++ {
		if base >= l.regions[i].Base && end <= l.regions[i].End() {
			return true
		}
	}
	return false
}

// firstOverlap returns the lowest-based region intersecting
// [base, base+size), or nil.
func (l *regionList) firstOverlap(base, size uint64) *Region {
	end := base + size
	for i := 0; i < l.count; i++ {
		if l.regions[i].Base < end && l.regions[i].End() > base {
			return &l.regions[i]
		}
	}
	return nil
}

// physMap aggregates the RAM view and the reservations carved out of it.
type physMap struct {
	memory   regionList
	reserved regionList
}

var phys physMap

// Reset clears the registry. It runs once at the very beginning of the
// boot-time pass, before the firmware memory map is ingested.
func Reset() {
	phys = physMap{}
}

// AddMemory registers [base, base+size) as RAM.
func AddMemory(base, size uint64) *kernel.Error {
	return phys.memory.insert(base, size, KindReserved)
}

// RemoveMemory drops [base, base+size) from the RAM view.
func RemoveMemory(base, size uint64) {
	phys.memory.remove(base, size)
}

// CapMemory clips the RAM view to exactly [base, base+size), dropping all
// memory outside the window.
func CapMemory(base, size uint64) {
	phys.memory.remove(0, base)
	if end := base + size; end != 0 {
		phys.memory.remove(end, ^uint64(0)-end)
	}
}

// Reserve excludes [base, base+size) from general allocation and tags it
// with the given kind. The caller is responsible for overlap policy;
// reservations of the same kind that touch are coalesced.
func Reserve(base, size uint64, kind Kind) *kernel.Error {
	return phys.reserved.insert(base, size, kind)
}

// IsRegionMemory returns true if [base, base+size) lies entirely within a
// single RAM range.
func IsRegionMemory(base, size uint64) bool {
	return phys.memory.contains(base, size)
}

// IsRegionReserved returns true if [base, base+size) intersects any
// existing reservation.
func IsRegionReserved(base, size uint64) bool {
	return phys.reserved.overlaps(base, size)
}

// StartOfDRAM returns the lowest registered RAM address.
func StartOfDRAM() uint64 {
	if phys.memory.count == 0 {
		return 0
	}
	return phys.memory.regions[0].Base
}

// EndOfDRAM returns the first address past the highest registered RAM
// range.
func EndOfDRAM() uint64 {
	if phys.memory.count == 0 {
		return 0
	}
	return phys.memory.regions[phys.memory.count-1].End()
}

// RegionVisitor is invoked by VisitMemory and VisitReserved for each
// region in ascending base order. Returning false aborts the walk.
type RegionVisitor func(region *Region) bool

// VisitMemory invokes visitor for each registered RAM range.
func VisitMemory(visitor RegionVisitor) {
	visit(&phys.memory, visitor)
}

// VisitReserved invokes visitor for each reservation.
func VisitReserved(visitor RegionVisitor) {
	visit(&phys.reserved, visitor)
}

func visit(l *regionList, visitor RegionVisitor) {
	for i := 0; i < l.count; i++ {
		if !visitor(&l.regions[i]) {
			return
		}
	}
}

// FindInRange searches top-down for a free range of the requested size
// inside [start, end), aligned down to align (a power of 2). Free means
// registered RAM not intersecting any reservation. It returns the base of
// the found range, or 0 if no placement exists.
func FindInRange(start, end, size, align uint64) uint64 {
	if size == 0 {
		return 0
	}

	for i := phys.memory.count - 1; i >= 0; i-- {
		r := &phys.memory.regions[i]

		lo := r.Base
		if lo < start {
			lo = start
		}
		hi := r.End()
		if hi > end {
			hi = end
		}
		if hi <= lo || hi-lo < size {
			continue
		}

		candidate := (hi - size) &^ (align - 1)
		for candidate >= lo {
			blocker := phys.reserved.firstOverlap(candidate, size)
			if blocker == nil {
				return candidate
			}
			if blocker.Base < size {
				break
			}
			next := (blocker.Base - size) &^ (align - 1)
			if next >= candidate {
				break
			}
			candidate = next
		}
	}

	return 0
}

// Dump logs the current RAM view and reservation set.
func Dump() {
	kfmt.Printf("[memblock] memory map:\n")
	VisitMemory(func(r *Region) bool {
		kfmt.Printf("  mem  [0x%16x - 0x%16x], size: %d\n", r.Base, r.End(), r.Size)
		return true
	})
	VisitReserved(func(r *Region) bool {
		kfmt.Printf("  resv [0x%16x - 0x%16x], size: %d, kind: %s\n", r.Base, r.End(), r.Size, r.Kind)
		return true
	})
}
