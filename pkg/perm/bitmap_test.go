package perm

import (
	"testing"
)

func TestGrantRevokeHas(t *testing.T) {
	ps := []Bitmap{
		FromBit(0),
		FromBit(63), // high bit of the low half
		FromBit(64), // low bit of the high half
		FromBit(127),
		MustLookup(DataRead),
		MustLookup(PermGrant),
	}
	bases := []Bitmap{
		{},
		{Lo: 0xdeadbeef},
		{Hi: 0xcafef00d},
		{Lo: ^uint64(0), Hi: ^uint64(0)},
		FullSuperset(),
	}

	for _, b := range bases {
		for _, p := range ps {
			if !b.Grant(p).Has(p) {
				t.Errorf("has(grant(%v, %v)) = false", b, p)
			}
			if b.Revoke(p).Has(p) && !p.IsZero() {
				t.Errorf("has(revoke(%v, %v)) = true", b, p)
			}
			if b.Grant(p).Grant(p) != b.Grant(p) {
				t.Errorf("grant is not idempotent for %v, %v", b, p)
			}
			if b.Revoke(p).Revoke(p) != b.Revoke(p) {
				t.Errorf("revoke is not idempotent for %v, %v", b, p)
			}
		}
	}
}

func TestCanDelegate(t *testing.T) {
	g := Bitmap{Lo: 0b1111, Hi: 0b1010}

	// Reflexive.
	if !CanDelegate(g, g) {
		t.Error("canDelegate(b, b) must hold")
	}

	// Monotone: any subset of a delegable target stays delegable.
	targets := []Bitmap{{}, {Lo: 0b0001}, {Lo: 0b1010, Hi: 0b1000}, g}
	for _, tgt := range targets {
		if !CanDelegate(g, tgt) {
			t.Errorf("expected canDelegate(%v, %v)", g, tgt)
		}
		shrunk := Bitmap{Lo: tgt.Lo & 0b0110, Hi: tgt.Hi}
		if !CanDelegate(g, shrunk) {
			t.Errorf("monotonicity violated for %v", shrunk)
		}
	}

	// A single bit outside the grantor defeats the whole grant.
	if CanDelegate(g, Bitmap{Lo: 0b10000}) {
		t.Error("target outside grantor must be rejected")
	}
	if CanDelegate(g, g.Grant(FromBit(127))) {
		t.Error("superset of grantor must be rejected")
	}

	// Owners hold the full superset, so everything delegates.
	if !CanDelegate(FullSuperset(), MustLookup(PermGrant).Grant(MustLookup(DataWrite))) {
		t.Error("full superset must delegate anything in the catalog")
	}
}

func TestSplitMergeRoundTrip(t *testing.T) {
	cases := []Bitmap{
		{},
		{Lo: 1},
		{Lo: 1 << 63},
		{Hi: 1},
		{Hi: 1 << 63},
		{Lo: ^uint64(0), Hi: ^uint64(0)},
		FullSuperset(),
		{Lo: 0x0123456789abcdef, Hi: 0xfedcba9876543210},
	}
	for _, b := range cases {
		lo, hi := b.Split()
		if Merge(lo, hi) != b {
			t.Errorf("merge(split(%v)) = %v", b, Merge(lo, hi))
		}
	}
}

func TestDecimalStringHalves(t *testing.T) {
	b := Bitmap{Lo: 1 << 63, Hi: (1 << 11) | (1 << 6)} // bit 63 needs unsigned carriage
	if b.LoString() != "9223372036854775808" {
		t.Errorf("LoString() = %s", b.LoString())
	}

	parsed, err := ParseHalves(b.LoString(), b.HiString())
	if err != nil {
		t.Fatalf("ParseHalves: %v", err)
	}
	if parsed != b {
		t.Errorf("round-trip through decimal strings lost bits: %v != %v", parsed, b)
	}

	if _, err := ParseHalves("-1", "0"); err == nil {
		t.Error("negative half must be rejected")
	}
	if _, err := ParseHalves("x", "0"); err == nil {
		t.Error("non-numeric half must be rejected")
	}
}

func TestHasAllHasAny(t *testing.T) {
	b := FromNames([]string{DataRead, DataWrite})

	if !b.HasAll(MustLookup(DataRead), MustLookup(DataWrite)) {
		t.Error("HasAll over granted bits must hold")
	}
	if b.HasAll(MustLookup(DataRead), MustLookup(DataDelete)) {
		t.Error("HasAll with a missing bit must fail")
	}
	if !b.HasAny(MustLookup(DataDelete), MustLookup(DataRead)) {
		t.Error("HasAny with one granted bit must hold")
	}
	if b.HasAny(MustLookup(DataDelete), MustLookup(PermGrant)) {
		t.Error("HasAny with no granted bits must fail")
	}
}
