package domain

import (
	"errors"
	"testing"
)

func TestStandardMaterialsLookup(t *testing.T) {
	catalog := StandardMaterials()
	m, ok := catalog.Lookup(128550)
	if !ok || m.Shade != "A3" || m.Thickness != "14mm" {
		t.Fatalf("unexpected lookup result %+v (%v)", m, ok)
	}
	m, ok = catalog.Find("a3.5", "20MM")
	if !ok || m.ID != 128608 {
		t.Fatalf("expected case-insensitive find of A3.5 20mm, got %+v (%v)", m, ok)
	}
	if _, ok := catalog.Find("A4", "14mm"); ok {
		t.Fatalf("A4 is only stocked in 20mm")
	}
	if got := len(catalog.Entries()); got != 35 {
		t.Fatalf("expected 35 materials, got %d", got)
	}
	if th := catalog.Thicknesses(); len(th) != 2 || th[0] != "14mm" || th[1] != "20mm" {
		t.Fatalf("unexpected thicknesses %v", th)
	}
}

func TestCatalogResolve(t *testing.T) {
	catalog := StandardMaterials()
	m, err := catalog.Resolve(MaterialSpec{Shade: "B2", Thickness: "20mm"})
	if err != nil || m.ID != 128611 {
		t.Fatalf("resolve by shade: %+v %v", m, err)
	}
	m, err = catalog.Resolve(MaterialSpec{MaterialID: 128554})
	if err != nil || m.Shade != "B2" {
		t.Fatalf("resolve by id: %+v %v", m, err)
	}
	var unknown UnknownMaterialError
	if _, err := catalog.Resolve(MaterialSpec{Shade: "Z9", Thickness: "14mm"}); !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownMaterialError, got %v", err)
	}
	if _, err := catalog.Resolve(MaterialSpec{MaterialID: 128554, Shade: "A1", Thickness: "14mm"}); !errors.As(err, &unknown) {
		t.Fatalf("expected mismatch to be rejected, got %v", err)
	}
}

func TestNewCatalogRejectsDuplicates(t *testing.T) {
	if _, err := NewCatalog([]Material{{1, "A1", "14mm"}, {1, "A2", "14mm"}}); err == nil {
		t.Fatalf("expected duplicate id error")
	}
	if _, err := NewCatalog([]Material{{1, "A1", "14mm"}, {2, "a1", "14MM"}}); err == nil {
		t.Fatalf("expected duplicate shade/thickness error")
	}
	if _, err := NewCatalog([]Material{{0, "A1", "14mm"}}); err == nil {
		t.Fatalf("expected non-positive id error")
	}
}
