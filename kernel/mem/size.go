// Package mem provides the memory-related types and constants shared by
// the physical and early memory management packages.
package mem

// Size represents a memory block size in bytes.
type Size uint64

// Common memory block sizes.
const (
	Byte Size = 1
	Kb        = 1024 * Byte
	Mb        = 1024 * Kb
	Gb        = 1024 * Mb
)

// ParseSize parses a byte count expressed in the kernel command line
// convention: a decimal or 0x-prefixed hexadecimal number with an optional
// K, M, G or T suffix (case-insensitive). It returns the parsed value and
// true on success, or (0, false) if s is empty or malformed.
func ParseSize(s string) (uint64, bool) {
	if len(s) == 0 {
		return 0, false
	}

	var (
		val  uint64
		base uint64 = 10
		i    int
	)

	if len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		base = 16
		i = 2
	}

	digits := 0
	for ; i < len(s); i++ {
		var d uint64
		switch ch := s[i]; {
		case ch >= '0' && ch <= '9':
			d = uint64(ch - '0')
		case base == 16 && ch >= 'a' && ch <= 'f':
			d = uint64(ch-'a') + 10
		case base == 16 && ch >= 'A' && ch <= 'F':
			d = uint64(ch-'A') + 10
		default:
			goto suffix
		}
		val = val*base + d
		digits++
	}

suffix:
	if digits == 0 {
		return 0, false
	}

	if i < len(s) {
		switch s[i] {
		case 'k', 'K':
			val <<= 10
		case 'm', 'M':
			val <<= 20
		case 'g', 'G':
			val <<= 30
		case 't', 'T':
			val <<= 40
		default:
			return 0, false
		}
		if i+1 != len(s) {
			return 0, false
		}
	}

	return val, true
}
