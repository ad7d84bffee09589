package domain

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// Material maps a manufacturer material id to a shade and thickness.
type Material struct {
	ID        int    `json:"materialId" yaml:"id"`
	Shade     string `json:"shade" yaml:"shade"`
	Thickness string `json:"thickness" yaml:"thickness"`
}

// MaterialSpec describes a puck to create. Either MaterialID or the
// shade/thickness pair identifies the material.
type MaterialSpec struct {
	MaterialID      int
	Shade           string
	Thickness       string
	LotNumber       int
	SerialNumber    int
	ShrinkageFactor float64
}

// Catalog is an immutable lookup table of known materials.
type Catalog struct {
	entries []Material
	byID    map[int]Material
	byKey   map[string]Material
}

func materialKey(shade, thickness string) string {
	return strings.ToUpper(strings.TrimSpace(shade)) + "|" + strings.ToLower(strings.TrimSpace(thickness))
}

// NewCatalog validates entries and builds a catalog. Ids and shade/thickness
// pairs must be unique.
func NewCatalog(entries []Material) (*Catalog, error) {
	c := &Catalog{
		byID:  make(map[int]Material, len(entries)),
		byKey: make(map[string]Material, len(entries)),
	}
	for _, m := range entries {
		if m.ID <= 0 {
			return nil, fmt.Errorf("material id must be positive, got %d", m.ID)
		}
		if m.Shade == "" || m.Thickness == "" {
			return nil, fmt.Errorf("material %d requires shade and thickness", m.ID)
		}
		if _, dup := c.byID[m.ID]; dup {
			return nil, fmt.Errorf("duplicate material id %d", m.ID)
		}
		key := materialKey(m.Shade, m.Thickness)
		if prev, dup := c.byKey[key]; dup {
			return nil, fmt.Errorf("materials %d and %d share %s %s", prev.ID, m.ID, m.Shade, m.Thickness)
		}
		c.byID[m.ID] = m
		c.byKey[key] = m
		c.entries = append(c.entries, m)
	}
	slices.SortFunc(c.entries, func(a, b Material) int { return cmp.Compare(a.ID, b.ID) })
	return c, nil
}

// Lookup returns the material with the given id.
func (c *Catalog) Lookup(id int) (Material, bool) {
	if c == nil {
		return Material{}, false
	}
	m, ok := c.byID[id]
	return m, ok
}

// Find returns the material matching shade and thickness.
func (c *Catalog) Find(shade, thickness string) (Material, bool) {
	if c == nil {
		return Material{}, false
	}
	m, ok := c.byKey[materialKey(shade, thickness)]
	return m, ok
}

// Resolve fills in the missing half of spec from the catalog and fails with
// UnknownMaterialError when the material is not known or the halves disagree.
func (c *Catalog) Resolve(spec MaterialSpec) (Material, error) {
	if spec.MaterialID != 0 {
		m, ok := c.Lookup(spec.MaterialID)
		if !ok {
			return Material{}, UnknownMaterialError{MaterialID: spec.MaterialID}
		}
		if spec.Shade != "" && materialKey(spec.Shade, spec.Thickness) != materialKey(m.Shade, m.Thickness) {
			return Material{}, UnknownMaterialError{MaterialID: spec.MaterialID, Shade: spec.Shade, Thickness: spec.Thickness}
		}
		return m, nil
	}
	m, ok := c.Find(spec.Shade, spec.Thickness)
	if !ok {
		return Material{}, UnknownMaterialError{Shade: spec.Shade, Thickness: spec.Thickness}
	}
	return m, nil
}

// Entries returns catalog entries ordered by id.
func (c *Catalog) Entries() []Material {
	if c == nil {
		return nil
	}
	return slices.Clone(c.entries)
}

// Thicknesses returns the distinct thickness labels, sorted.
func (c *Catalog) Thicknesses() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, m := range c.Entries() {
		if _, ok := seen[m.Thickness]; ok {
			continue
		}
		seen[m.Thickness] = struct{}{}
		out = append(out, m.Thickness)
	}
	slices.Sort(out)
	return out
}

var standardMaterials = []Material{
	{128548, "A1", "14mm"},
	{128549, "A2", "14mm"},
	{128550, "A3", "14mm"},
	{128551, "A3.5", "14mm"},
	{128553, "B1", "14mm"},
	{128554, "B2", "14mm"},
	{128555, "B3", "14mm"},
	{128556, "B4", "14mm"},
	{128557, "C1", "14mm"},
	{128558, "C2", "14mm"},
	{128559, "C3", "14mm"},
	{128560, "C4", "14mm"},
	{128561, "D2", "14mm"},
	{128562, "D3", "14mm"},
	{128563, "D4", "14mm"},
	{128564, "OM1", "14mm"},
	{128566, "OM3", "14mm"},
	{128605, "A1", "20mm"},
	{128606, "A2", "20mm"},
	{128607, "A3", "20mm"},
	{128608, "A3.5", "20mm"},
	{128609, "A4", "20mm"},
	{128610, "B1", "20mm"},
	{128611, "B2", "20mm"},
	{128612, "B3", "20mm"},
	{128613, "B4", "20mm"},
	{128614, "C1", "20mm"},
	{128615, "C2", "20mm"},
	{128616, "C3", "20mm"},
	{128617, "C4", "20mm"},
	{128618, "D2", "20mm"},
	{128619, "D3", "20mm"},
	{128620, "D4", "20mm"},
	{128621, "OM1", "20mm"},
	{128623, "OM3", "20mm"},
}

// StandardMaterials returns the built-in zirconia catalog.
func StandardMaterials() *Catalog {
	c, err := NewCatalog(standardMaterials)
	if err != nil {
		panic(fmt.Errorf("standard materials: %w", err))
	}
	return c
}
