// Package earlymem implements the boot-time physical memory reservation
// pass. It ingests the loader-supplied memory map, applies the
// usable-memory hints, and carves out the quick-kexec staging, per-core
// park and crash-capture regions before any allocator exists.
//
// The pass is strictly sequential and runs exactly once on the boot core:
// each reservation step must observe the reservations committed by the
// steps before it to avoid collisions.
package earlymem

import (
	"github.com/openeuler-mirror/summer2021-26/kernel"
	"github.com/openeuler-mirror/summer2021-26/kernel/cpu"
	"github.com/openeuler-mirror/summer2021-26/kernel/hal/bootinfo"
	"github.com/openeuler-mirror/summer2021-26/kernel/kfmt"
	"github.com/openeuler-mirror/summer2021-26/kernel/mem"
	"github.com/openeuler-mirror/summer2021-26/kernel/mem/memblock"
)

const (
	// quickKexecAlign is the alignment the boot protocol requires for a
	// staged kernel image.
	quickKexecAlign = 2 * uint64(mem.Mb)

	// parkSlotSize is the amount of park memory provisioned per core.
	parkSlotSize = uint64(mem.Mb)
)

var (
	// The hardware touchpoints below are mocked by tests.
	cmdLineOptionFn = bootinfo.CmdLineOption
	usableRangesFn  = bootinfo.UsableRanges
	crashHeaderFn   = bootinfo.CrashHeader
	visitMemFn      = bootinfo.VisitMemRegions
	possibleCoresFn = cpu.PossibleCount

	// quickKexec holds the placement of the fast-reboot staging region.
	// A zero size means the feature is disabled.
	quickKexec bootinfo.Range

	// parkMem holds the placement of the per-core park slots. A zero
	// size means the feature is disabled.
	parkMem bootinfo.Range

	// crashCapture holds the placement of the crash capture header
	// reservation.
	crashCapture bootinfo.Range

	// dma32Limit is the first physical address not reachable by 32-bit
	// DMA masters.
	dma32Limit uint64
)

// QuickKexecRegion returns the reserved fast-reboot staging region. The
// size is zero if the feature is disabled or could not be placed.
func QuickKexecRegion() bootinfo.Range {
	return quickKexec
}

// ParkRegion returns the reserved per-core park region. The size is zero
// if the feature is disabled or the requested placement was rejected.
func ParkRegion() bootinfo.Range {
	return parkMem
}

// CrashCaptureRegion returns the reserved crash capture header region.
func CrashCaptureRegion() bootinfo.Range {
	return crashCapture
}

// DMA32Limit returns the first physical address above the 32-bit DMA
// reachable window.
func DMA32Limit() uint64 {
	return dma32Limit
}

// Init executes the reservation pass. It must run after the core topology
// has been recorded (the park reservation is sized from it) and before
// the general memory manager consumes the reserved region set.
func Init() *kernel.Error {
	memblock.Reset()
	quickKexec = bootinfo.Range{}
	parkMem = bootinfo.Range{}
	crashCapture = bootinfo.Range{}

	if err := ingestMemoryMap(); err != nil {
		return err
	}
	if err := enforceUsableRanges(); err != nil {
		return err
	}
	applyMemoryLimit()

	dma32Limit = maxZonePhys(32)

	reserveQuickKexec()
	reserveParkMem()
	reserveCrashCapture()

	memblock.Dump()
	return nil
}

// ingestMemoryMap registers the loader-reported RAM ranges with the
// region registry.
func ingestMemoryMap() *kernel.Error {
	var err *kernel.Error

	visitMemFn(func(entry *bootinfo.MemoryMapEntry) bool {
		if entry.Type != bootinfo.MemAvailable {
			return true
		}

		err = memblock.AddMemory(entry.PhysAddress, entry.Length)
		return err == nil
	})

	return err
}

// enforceUsableRanges applies the usable-memory hint list. The first
// entry clips the RAM view to a single capture window; a second entry, if
// present, is added back as an extra low region.
func enforceUsableRanges() *kernel.Error {
	ranges := usableRangesFn()

	if ranges[0].Size != 0 {
		memblock.CapMemory(ranges[0].Base, ranges[0].Size)
	}
	if ranges[1].Size != 0 {
		return memblock.AddMemory(ranges[1].Base, ranges[1].Size)
	}

	return nil
}

// applyMemoryLimit truncates the RAM view to the size requested via the
// mem= option, if any.
func applyMemoryLimit() {
	limitStr, ok := cmdLineOptionFn("mem")
	if !ok {
		return
	}

	limit, ok := mem.ParseSize(limitStr)
	if !ok || limit == 0 {
		return
	}
	limit = mem.PageAlignDown(limit)
	kfmt.Printf("[earlymem] memory limited to %dMB\n", limit>>20)

	remaining := limit
	cut := memblock.EndOfDRAM()
	memblock.VisitMemory(func(r *memblock.Region) bool {
		if r.Size >= remaining {
			cut = r.Base + remaining
			remaining = 0
			return false
		}
		remaining -= r.Size
		return true
	})

	if remaining == 0 && cut < memblock.EndOfDRAM() {
		memblock.RemoveMemory(cut, ^uint64(0)-cut)
	}
}

// maxZonePhys returns the first address past the memory reachable with
// the given address-size limit. Memory starting above the naturally
// addressable window is assumed to sit behind a DMA offset.
func maxZonePhys(zoneBits uint) uint64 {
	offset := memblock.StartOfDRAM() &^ ((uint64(1) << zoneBits) - 1)
	limit := offset + (uint64(1) << zoneBits)
	if end := memblock.EndOfDRAM(); limit > end {
		limit = end
	}
	return limit
}

// reserveQuickKexec places the fast-reboot staging region below the DMA32
// limit. Failure to place it disables the feature; it never fails the
// boot.
func reserveQuickKexec() {
	sizeStr, ok := cmdLineOptionFn("quickkexec")
	if !ok {
		return
	}

	size, ok := mem.ParseSize(sizeStr)
	if !ok || size == 0 {
		return
	}
	size = mem.PageAlignUp(size)

	start := memblock.FindInRange(0, dma32Limit, size, quickKexecAlign)
	if start == 0 {
		kfmt.Printf("[earlymem] cannot allocate quick kexec mem (size: 0x%x)\n", size)
		return
	}

	memblock.Reserve(start, size, memblock.KindQuickKexec)
	kfmt.Printf("[earlymem] quick kexec mem reserved: 0x%16x - 0x%16x (%d MB)\n",
		start, start+size, size>>20)

	quickKexec = bootinfo.Range{Base: start, Size: size}
}

// reserveParkMem reserves the per-core park slots at the administratively
// requested base address. A placement that is not plain RAM or collides
// with an earlier reservation is rejected with a diagnostic; boot
// continues with the feature disabled.
func reserveParkMem() {
	baseStr, ok := cmdLineOptionFn("cpuparkmem")
	if !ok {
		return
	}

	base, ok := mem.ParseSize(baseStr)
	if !ok {
		return
	}

	// An address that rounds to zero counts as unset.
	base = mem.PageAlignUp(base)
	if base == 0 {
		return
	}

	length := mem.PageAlignUp(parkSlotSize * uint64(possibleCoresFn()))
	if length == 0 {
		return
	}

	if !memblock.IsRegionMemory(base, length) {
		kfmt.Printf("[earlymem] cannot reserve park mem: region is not memory\n")
		return
	}
	if memblock.IsRegionReserved(base, length) {
		kfmt.Printf("[earlymem] cannot reserve park mem: region overlaps reserved memory\n")
		return
	}

	memblock.Reserve(base, length, memblock.KindCorePark)
	kfmt.Printf("[earlymem] cpu park mem reserved: 0x%16x - 0x%16x (%d MB)\n",
		base, base+length, length>>20)

	parkMem = bootinfo.Range{Base: base, Size: length}
}

// reserveCrashCapture reserves the crash capture header handed over by
// the previous kernel. An overlap with an existing reservation drops the
// request with a diagnostic rather than merging silently.
func reserveCrashCapture() {
	hdr := crashHeaderFn()
	if hdr.Size == 0 {
		return
	}

	if memblock.IsRegionReserved(hdr.Base, hdr.Size) {
		kfmt.Printf("[earlymem] crash capture header is overlapped\n")
		return
	}

	memblock.Reserve(hdr.Base, hdr.Size, memblock.KindCrashCapture)
	kfmt.Printf("[earlymem] reserving %dKB of memory at 0x%x for crash capture header\n",
		hdr.Size>>10, hdr.Base)

	crashCapture = hdr
}
