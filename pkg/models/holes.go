package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// HoleData is the stored shape of a course's holes. Older data keeps only a
// bare count, newer data a list. It is resolved once when a course is read.
type HoleData interface {
	Resolve() []Hole
}

// LegacyHoleCount is a course stored with a hole count only.
type LegacyHoleCount int

// Resolve synthesizes holes 1..n.
func (n LegacyHoleCount) Resolve() []Hole {
	return SequentialHoles(int(n))
}

// HoleList is a course stored with explicit hole records.
type HoleList []Hole

// Resolve returns the holes ordered by number.
func (l HoleList) Resolve() []Hole {
	holes := make([]Hole, len(l))
	copy(holes, l)
	SortHoles(holes)
	return holes
}

// DecodeHoleData decodes either representation. An absent or null value
// decodes to an empty list.
func DecodeHoleData(raw json.RawMessage) (HoleData, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return HoleList(nil), nil
	}
	switch trimmed[0] {
	case '[':
		var list []Hole
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("decode hole list: %w", err)
		}
		return HoleList(list), nil
	default:
		var n int
		if err := json.Unmarshal(trimmed, &n); err != nil {
			return nil, fmt.Errorf("decode hole count: %w", err)
		}
		if n < 0 {
			return nil, fmt.Errorf("negative hole count %d", n)
		}
		return LegacyHoleCount(n), nil
	}
}
