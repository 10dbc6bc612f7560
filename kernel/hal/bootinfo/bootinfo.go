// Package bootinfo provides accessors for the boot record that the loader
// hands to the kernel entry point. The record is a pre-digested, tagged
// structure: the firmware/device-tree parsing that produced it happens in
// the loader, and only its scalar outputs (RAM map, usable-range hints,
// crash header location, command line, core topology) are consumed here.
package bootinfo

import "unsafe"

type tagType uint32

const (
	tagSectionEnd tagType = iota
	tagBootCmdLine
	tagMemoryMap
	tagUsableRanges
	tagCrashHeader
	tagTopology
)

// info describes the boot record section header.
type info struct {
	// Total size of the boot record.
	totalSize uint32

	// Always set to zero; reserved for future use.
	reserved uint32
}

// tagHeader describes the header that precedes each tag. Each tag starts
// at an 8-byte aligned address.
type tagHeader struct {
	tagType tagType

	// The size of the tag including the header but not including any
	// alignment padding.
	size uint32
}

// mmapHeader describes the header of the memory map tag payload.
type mmapHeader struct {
	// The size of each entry that follows.
	entrySize uint32

	// The layout version of the entries that follow.
	entryVersion uint32
}

// MemoryEntryType defines the type of a MemoryMapEntry.
type MemoryEntryType uint32

const (
	// MemAvailable indicates that the memory region is plain RAM.
	MemAvailable MemoryEntryType = iota + 1

	// MemReserved indicates that the region is not available for use.
	MemReserved

	// Any value >= memUnknown is mapped to MemReserved.
	memUnknown
)

// String implements fmt.Stringer for MemoryEntryType.
func (t MemoryEntryType) String() string {
	switch t {
	case MemAvailable:
		return "available"
	case MemReserved:
		return "reserved"
	default:
		return "unknown"
	}
}

// MemoryMapEntry describes one memory region reported by the loader.
type MemoryMapEntry struct {
	// The physical address where the region starts.
	PhysAddress uint64

	// The length of the region in bytes.
	Length uint64

	// The type of the region.
	Type MemoryEntryType

	reserved uint32
}

// Range describes a (base, size) physical address pair.
type Range struct {
	Base uint64
	Size uint64
}

// MaxUsableRanges bounds the number of entries in the usable-memory hint
// list. A dual-entry list carries [high-or-only region, low region], the
// legacy convention used when handing a capture window plus an extra low
// block to a dump kernel.
const MaxUsableRanges = 2

var infoData uintptr

// SetInfoPtr records the address of the boot record. It must be invoked
// before any other function exported by this package.
func SetInfoPtr(ptr uintptr) {
	infoData = ptr
}

// MemRegionVisitor defines a visitor invoked by VisitMemRegions for each
// memory map entry. Returning false aborts the walk.
type MemRegionVisitor func(entry *MemoryMapEntry) bool

// VisitMemRegions invokes the supplied visitor for each memory region
// present in the boot record.
func VisitMemRegions(visitor MemRegionVisitor) {
	curPtr, size := findTagByType(tagMemoryMap)
	if size == 0 {
		return
	}

	ptrMapHeader := (*mmapHeader)(unsafe.Pointer(curPtr))
	endPtr := curPtr + uintptr(size)
	curPtr += unsafe.Sizeof(mmapHeader{})

	for curPtr < endPtr {
		entry := (*MemoryMapEntry)(unsafe.Pointer(curPtr))

		// Map unknown entry types to reserved.
		if entry.Type == 0 || entry.Type >= memUnknown {
			entry.Type = MemReserved
		}

		if !visitor(entry) {
			return
		}

		curPtr += uintptr(ptrMapHeader.entrySize)
	}
}

// UsableRanges returns the usable-memory hint list. Absent entries have a
// zero size.
func UsableRanges() [MaxUsableRanges]Range {
	var ranges [MaxUsableRanges]Range

	curPtr, size := findTagByType(tagUsableRanges)
	count := int(size / uint32(unsafe.Sizeof(Range{})))
	if count > MaxUsableRanges {
		count = MaxUsableRanges
	}

	for i := 0; i < count; i++ {
		ranges[i] = *(*Range)(unsafe.Pointer(curPtr))
		curPtr += unsafe.Sizeof(Range{})
	}

	return ranges
}

// CrashHeader returns the location of the crash capture header prepared
// by the previous kernel, or a zero-sized range if none was supplied.
func CrashHeader() Range {
	curPtr, size := findTagByType(tagCrashHeader)
	if uintptr(size) < unsafe.Sizeof(Range{}) {
		return Range{}
	}

	return *(*Range)(unsafe.Pointer(curPtr))
}

// Topology returns the core count the platform can bring online plus its
// secondary-boot and hotplug capabilities. It returns (1, false, false)
// if the loader did not supply a topology tag.
func Topology() (possible int, secondaryBoot, hotplug bool) {
	curPtr, size := findTagByType(tagTopology)
	if size < 8 {
		return 1, false, false
	}

	count := *(*uint32)(unsafe.Pointer(curPtr))
	flags := *(*uint32)(unsafe.Pointer(curPtr + 4))
	if count == 0 {
		count = 1
	}

	return int(count), flags&0x1 != 0, flags&0x2 != 0
}

// CmdLineOption scans the boot command line for a "key=value" token and
// returns the value. The returned string aliases the boot record and must
// not be retained past early boot.
func CmdLineOption(key string) (string, bool) {
	curPtr, size := findTagByType(tagBootCmdLine)
	if size == 0 {
		return "", false
	}

	cmdLine := unsafe.String((*byte)(unsafe.Pointer(curPtr)), size)

	// Cut at the first NUL.
	for i := 0; i < len(cmdLine); i++ {
		if cmdLine[i] == 0 {
			cmdLine = cmdLine[:i]
			break
		}
	}

	for len(cmdLine) != 0 {
		// Skip leading spaces.
		for len(cmdLine) != 0 && cmdLine[0] == ' ' {
			cmdLine = cmdLine[1:]
		}

		tokEnd := 0
		for tokEnd < len(cmdLine) && cmdLine[tokEnd] != ' ' {
			tokEnd++
		}
		token := cmdLine[:tokEnd]
		cmdLine = cmdLine[tokEnd:]

		eq := -1
		for i := 0; i < len(token); i++ {
			if token[i] == '=' {
				eq = i
				break
			}
		}
		if eq == len(key) && token[:eq] == key {
			return token[eq+1:], true
		}
	}

	return "", false
}

// findTagByType scans the boot record looking for the tag with the given
// type. It returns a pointer to the tag contents and the content length
// excluding the tag header, or (0, 0) if the tag is not present.
func findTagByType(tag tagType) (uintptr, uint32) {
	if infoData == 0 {
		return 0, 0
	}

	var ptrTagHeader *tagHeader

	curPtr := infoData + unsafe.Sizeof(info{})
	for ptrTagHeader = (*tagHeader)(unsafe.Pointer(curPtr)); ptrTagHeader.tagType != tagSectionEnd; ptrTagHeader = (*tagHeader)(unsafe.Pointer(curPtr)) {
		if ptrTagHeader.tagType == tag {
			return curPtr + 8, ptrTagHeader.size - 8
		}

		// Tags are aligned at 8-byte aligned addresses.
		curPtr += uintptr(int32(ptrTagHeader.size+7) & ^7)
	}

	return 0, 0
}
