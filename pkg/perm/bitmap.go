// Package perm implements the 128-bit permission algebra and the fixed
// permission catalog. Bit positions are part of the storage format and must
// never be renumbered once persisted.
package perm

import (
	"fmt"
	"strconv"
)

// Bitmap is a 128-bit permission set split across two unsigned 64-bit halves.
// Lo carries bits 0–63, Hi carries bits 64–127. Value semantics throughout;
// bit 63 is a valid permission bit, which is why the halves are unsigned.
type Bitmap struct {
	Lo uint64
	Hi uint64
}

// FromBit returns the bitmap with only the given bit position set.
func FromBit(pos uint8) Bitmap {
	if pos < 64 {
		return Bitmap{Lo: 1 << pos}
	}
	return Bitmap{Hi: 1 << (pos - 64)}
}

// Has reports whether every bit of p is present in b.
func (b Bitmap) Has(p Bitmap) bool {
	return b.Lo&p.Lo == p.Lo && b.Hi&p.Hi == p.Hi
}

// HasAll is Has over the union of the given sets.
func (b Bitmap) HasAll(ps ...Bitmap) bool {
	for _, p := range ps {
		if !b.Has(p) {
			return false
		}
	}
	return true
}

// HasAny reports whether at least one of the given sets is fully present.
func (b Bitmap) HasAny(ps ...Bitmap) bool {
	for _, p := range ps {
		if b.Has(p) {
			return true
		}
	}
	return false
}

// Grant returns b with every bit of p set.
func (b Bitmap) Grant(p Bitmap) Bitmap {
	return Bitmap{Lo: b.Lo | p.Lo, Hi: b.Hi | p.Hi}
}

// Revoke returns b with every bit of p cleared.
func (b Bitmap) Revoke(p Bitmap) Bitmap {
	return Bitmap{Lo: b.Lo &^ p.Lo, Hi: b.Hi &^ p.Hi}
}

// Union is an alias of Grant for combining role bitmaps.
func (b Bitmap) Union(o Bitmap) Bitmap { return b.Grant(o) }

// IsZero reports whether no bit is set.
func (b Bitmap) IsZero() bool { return b.Lo == 0 && b.Hi == 0 }

// CanDelegate implements the Superset Rule: target must be a subset of
// grantor, i.e. (target AND grantor) == target.
func CanDelegate(grantor, target Bitmap) bool {
	return grantor.Lo&target.Lo == target.Lo && grantor.Hi&target.Hi == target.Hi
}

// Split returns the two storage halves.
func (b Bitmap) Split() (lo, hi uint64) { return b.Lo, b.Hi }

// Merge rebuilds a bitmap from its storage halves.
func Merge(lo, hi uint64) Bitmap { return Bitmap{Lo: lo, Hi: hi} }

// LoString renders the low half as a decimal string for the wire layer.
// Both halves exceed 53 bits and cannot ride in a JSON number.
func (b Bitmap) LoString() string { return strconv.FormatUint(b.Lo, 10) }

// HiString renders the high half as a decimal string.
func (b Bitmap) HiString() string { return strconv.FormatUint(b.Hi, 10) }

// ParseHalves rebuilds a bitmap from the decimal-string halves.
func ParseHalves(lo, hi string) (Bitmap, error) {
	l, err := strconv.ParseUint(lo, 10, 64)
	if err != nil {
		return Bitmap{}, fmt.Errorf("invalid low half %q: %w", lo, err)
	}
	h, err := strconv.ParseUint(hi, 10, 64)
	if err != nil {
		return Bitmap{}, fmt.Errorf("invalid high half %q: %w", hi, err)
	}
	return Bitmap{Lo: l, Hi: h}, nil
}
