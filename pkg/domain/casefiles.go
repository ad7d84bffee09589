package domain

import (
	"strconv"
	"strings"
)

// ToothNumberFromFile extracts the tooth number from an STL file name of the
// form {caseId}|{restoration}|{tooth}|{shade}.stl.
func ToothNumberFromFile(name string) (int, bool) {
	parts := strings.Split(name, "|")
	if len(parts) < 3 {
		return 0, false
	}
	tooth, err := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err != nil || tooth < 1 || tooth > 32 {
		return 0, false
	}
	return tooth, true
}

// RemainingAfterMilling returns the case reduced to the files not in milled.
// Surviving files whose tooth number cannot be parsed are dropped. The second
// result is false when nothing remains.
func RemainingAfterMilling(c Case, milled map[string]struct{}) (Case, bool) {
	out := CloneCase(c)
	out.StlFiles = out.StlFiles[:0]
	out.ToothNumbers = out.ToothNumbers[:0]
	for _, file := range c.StlFiles {
		if _, done := milled[file]; done {
			continue
		}
		tooth, ok := ToothNumberFromFile(file)
		if !ok {
			continue
		}
		out.StlFiles = append(out.StlFiles, file)
		out.ToothNumbers = append(out.ToothNumbers, tooth)
	}
	out.Units = len(out.StlFiles)
	if out.Units == 0 {
		return Case{}, false
	}
	return out, true
}
