package mem

const (
	// PageShift is equal to log2(PageSize). This constant is used when
	// we need to convert a physical address to a page number (shift
	// right by PageShift) and vice-versa.
	PageShift = 12

	// PageSize defines the system's page size in bytes (4K granule).
	PageSize = Size(1 << PageShift)
)

// PageAlignDown rounds addr down to the nearest page boundary.
func PageAlignDown(addr uint64) uint64 {
	return addr &^ (uint64(PageSize) - 1)
}

// PageAlignUp rounds addr up to the nearest page boundary.
func PageAlignUp(addr uint64) uint64 {
	return (addr + uint64(PageSize) - 1) &^ (uint64(PageSize) - 1)
}

// AlignDown rounds addr down to the given power-of-2 alignment.
func AlignDown(addr, align uint64) uint64 {
	return addr &^ (align - 1)
}

// AlignUp rounds addr up to the given power-of-2 alignment.
func AlignUp(addr, align uint64) uint64 {
	return (addr + align - 1) &^ (align - 1)
}
