package domain

import (
	"encoding/json"
	"fmt"
)

// Snapshot is the serialisable form of every registry. Collections keep the
// dashboard's storage keys so persisted state stays interchangeable.
type Snapshot struct {
	Cases        []Case        `json:"cases"`
	Pucks        []Puck        `json:"pucks"`
	StorageSlots []StorageSlot `json:"storageSlots"`
	Mills        []Mill        `json:"mills"`
	MillLogs     []LogEntry    `json:"millLogs"`
}

// Buckets lists the persistence bucket names in write order.
var Buckets = []string{"cases", "pucks", "storageSlots", "mills", "millLogs"}

// EncodeBucket marshals one collection of the snapshot.
func (s Snapshot) EncodeBucket(bucket string) ([]byte, error) {
	var v any
	switch bucket {
	case "cases":
		v = nonNil(s.Cases)
	case "pucks":
		v = nonNil(s.Pucks)
	case "storageSlots":
		v = nonNil(s.StorageSlots)
	case "mills":
		v = nonNil(s.Mills)
	case "millLogs":
		v = nonNil(s.MillLogs)
	default:
		return nil, fmt.Errorf("unknown bucket %q", bucket)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", bucket, err)
	}
	return data, nil
}

// DecodeBucket unmarshals payload into the matching collection. Unknown
// buckets are ignored so older databases with extra rows still load.
func (s *Snapshot) DecodeBucket(bucket string, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	var target any
	switch bucket {
	case "cases":
		target = &s.Cases
	case "pucks":
		target = &s.Pucks
	case "storageSlots":
		target = &s.StorageSlots
	case "mills":
		target = &s.Mills
	case "millLogs":
		target = &s.MillLogs
	default:
		return nil
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("decode %s: %w", bucket, err)
	}
	return nil
}

func nonNil[T any](values []T) []T {
	if values == nil {
		return []T{}
	}
	return values
}
