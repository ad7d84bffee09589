package domain

import (
	"strconv"
	"strings"
)

// ParseScan decodes a puck label of the form
// shrinkageFactor|serialNumber|materialId|lotNumber and resolves the material
// against catalog.
func ParseScan(input string, catalog *Catalog) (MaterialSpec, error) {
	raw := strings.TrimSpace(input)
	parts := strings.Split(raw, "|")
	if len(parts) != 4 {
		return MaterialSpec{}, MalformedScanError{Input: input, Reason: "expected 4 fields, got " + strconv.Itoa(len(parts))}
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	shrinkage, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return MaterialSpec{}, MalformedScanError{Input: input, Reason: "shrinkage factor", Err: err}
	}
	serial, err := strconv.Atoi(parts[1])
	if err != nil {
		return MaterialSpec{}, MalformedScanError{Input: input, Reason: "serial number", Err: err}
	}
	materialID, err := strconv.Atoi(parts[2])
	if err != nil {
		return MaterialSpec{}, MalformedScanError{Input: input, Reason: "material id", Err: err}
	}
	lot, err := strconv.Atoi(parts[3])
	if err != nil {
		return MaterialSpec{}, MalformedScanError{Input: input, Reason: "lot number", Err: err}
	}
	material, ok := catalog.Lookup(materialID)
	if !ok {
		return MaterialSpec{}, MalformedScanError{
			Input:  input,
			Reason: "material not in catalog",
			Err:    UnknownMaterialError{MaterialID: materialID},
		}
	}
	return MaterialSpec{
		MaterialID:      material.ID,
		Shade:           material.Shade,
		Thickness:       material.Thickness,
		LotNumber:       lot,
		SerialNumber:    serial,
		ShrinkageFactor: shrinkage,
	}, nil
}
