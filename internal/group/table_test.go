package group

import "testing"

func isIPv4LinkLocal(a [4]byte) bool {
	return a[0] == 224 && a[1] == 0 && a[2] == 0
}

func TestRegisterFixedIdempotent(t *testing.T) {
	tbl := New[[4]byte](4, isIPv4LinkLocal)

	a := tbl.RegisterFixed([4]byte{239, 1, 1, 1})
	b := tbl.RegisterFixed([4]byte{239, 1, 1, 1})

	if a != b {
		t.Fatalf("RegisterFixed returned different entries for the same address")
	}
	if tbl.FixedCount() != 1 {
		t.Fatalf("FixedCount() = %d, want 1", tbl.FixedCount())
	}
}

func TestFindOrInsertRejectsLinkLocal(t *testing.T) {
	tbl := New[[4]byte](4, isIPv4LinkLocal)

	e, full := tbl.FindOrInsert([4]byte{224, 0, 0, 1})
	if e != nil || full {
		t.Fatalf("FindOrInsert(224.0.0.1) = (%v, %v), want (nil, false)", e, full)
	}
}

func TestFindOrInsertReusesInactiveSlot(t *testing.T) {
	tbl := New[[4]byte](2, isIPv4LinkLocal)

	first, _ := tbl.FindOrInsert([4]byte{239, 1, 1, 1})
	first.Active = true
	second, _ := tbl.FindOrInsert([4]byte{239, 1, 1, 2})
	second.Active = false

	if tbl.DynamicCount() != 2 {
		t.Fatalf("DynamicCount() = %d, want 2", tbl.DynamicCount())
	}

	reused, full := tbl.FindOrInsert([4]byte{239, 1, 1, 3})
	if full {
		t.Fatalf("FindOrInsert unexpectedly reported table full")
	}
	if reused != second {
		t.Fatalf("FindOrInsert did not reuse the inactive slot")
	}
	if reused.Addr != [4]byte{239, 1, 1, 3} {
		t.Fatalf("reused entry address = %v, want 239.1.1.3", reused.Addr)
	}
}

func TestFindOrInsertReportsTableFull(t *testing.T) {
	tbl := New[[4]byte](1, isIPv4LinkLocal)

	first, _ := tbl.FindOrInsert([4]byte{239, 1, 1, 1})
	first.Active = true

	_, full := tbl.FindOrInsert([4]byte{239, 1, 1, 2})
	if !full {
		t.Fatalf("FindOrInsert should have reported the table full")
	}
}

func TestTightenDropsTrailingInactive(t *testing.T) {
	tbl := New[[4]byte](4, isIPv4LinkLocal)

	a, _ := tbl.FindOrInsert([4]byte{239, 1, 1, 1})
	a.Active = true
	b, _ := tbl.FindOrInsert([4]byte{239, 1, 1, 2})
	b.Active = true

	b.Active = false
	tbl.Tighten()

	if tbl.DynamicCount() != 1 {
		t.Fatalf("DynamicCount() = %d after Tighten, want 1", tbl.DynamicCount())
	}

	a.Active = false
	tbl.Tighten()

	if tbl.DynamicCount() != 0 {
		t.Fatalf("DynamicCount() = %d after second Tighten, want 0", tbl.DynamicCount())
	}
}

func TestTightenStopsAtActiveEntry(t *testing.T) {
	tbl := New[[4]byte](4, isIPv4LinkLocal)

	a, _ := tbl.FindOrInsert([4]byte{239, 1, 1, 1})
	a.Active = true
	b, _ := tbl.FindOrInsert([4]byte{239, 1, 1, 2})
	b.Active = false
	c, _ := tbl.FindOrInsert([4]byte{239, 1, 1, 3})
	c.Active = false

	tbl.Tighten()

	if tbl.DynamicCount() != 1 {
		t.Fatalf("DynamicCount() = %d, want 1 (only the active entry retained)", tbl.DynamicCount())
	}
}

func TestFixedEntriesSurviveTighten(t *testing.T) {
	tbl := New[[4]byte](4, isIPv4LinkLocal)

	tbl.RegisterFixed([4]byte{239, 5, 5, 5})
	tbl.Tighten()

	if tbl.FixedCount() != 1 {
		t.Fatalf("FixedCount() = %d after Tighten, want 1", tbl.FixedCount())
	}
}
