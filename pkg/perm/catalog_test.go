package perm

import (
	"reflect"
	"testing"
)

func TestCatalogBitRanges(t *testing.T) {
	ranges := map[string][2]uint8{
		DomainOrganization: {0, 12},
		DomainTeam:         {20, 26},
		DomainRepository:   {30, 36},
		DomainData:         {40, 44},
		DomainCollab:       {50, 59},
		DomainAdmin:        {60, 68},
		DomainPermissions:  {70, 75},
	}
	for _, p := range All() {
		r, ok := ranges[p.Domain]
		if !ok {
			t.Fatalf("permission %s has unknown domain %s", p.Name, p.Domain)
		}
		if p.Bit < r[0] || p.Bit > r[1] {
			t.Errorf("permission %s bit %d outside domain range [%d, %d]", p.Name, p.Bit, r[0], r[1])
		}
	}
}

func TestFromNamesIgnoresUnknown(t *testing.T) {
	b := FromNames([]string{DataRead, "future.permission", DataWrite, ""})
	want := MustLookup(DataRead).Grant(MustLookup(DataWrite))
	if b != want {
		t.Errorf("FromNames = %v, want %v", b, want)
	}
}

func TestNamesDeterministicOrder(t *testing.T) {
	// Order of input names must not affect decode order.
	a := FromNames([]string{PermGrant, DataRead, OrgRead}).Names()
	b := FromNames([]string{OrgRead, PermGrant, DataRead}).Names()
	if !reflect.DeepEqual(a, b) {
		t.Errorf("Names() not deterministic: %v vs %v", a, b)
	}
	if !reflect.DeepEqual(a, []string{OrgRead, DataRead, PermGrant}) {
		t.Errorf("Names() not in declaration order: %v", a)
	}
}

func TestNameBitRoundTrip(t *testing.T) {
	for _, p := range All() {
		bm, ok := Lookup(p.Name)
		if !ok {
			t.Fatalf("Lookup(%s) failed", p.Name)
		}
		if bm != FromBit(p.Bit) {
			t.Errorf("Lookup(%s) = %v, want bit %d", p.Name, bm, p.Bit)
		}
		desc, ok := Describe(p.Bit)
		if !ok || desc.Name != p.Name {
			t.Errorf("Describe(%d) = %v, want %s", p.Bit, desc, p.Name)
		}
	}
}

func TestFullSupersetCoversCatalog(t *testing.T) {
	fs := FullSuperset()
	for _, p := range All() {
		if !fs.Has(FromBit(p.Bit)) {
			t.Errorf("full superset missing %s", p.Name)
		}
	}
	if got := len(fs.Names()); got != len(All()) {
		t.Errorf("full superset decodes to %d names, catalog has %d", got, len(All()))
	}
}
