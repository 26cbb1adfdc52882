// Package draft holds the per-chapter draft records and their JSON file.
package draft

import (
	"encoding/json"

	"github.com/hpungsan/loom/internal/errors"
)

// Parts is the number of prose parts per chapter.
const Parts = 3

// Record is one chapter's drafts plus the title and context copied from the outline.
type Record struct {
	Part1   string `json:"part1"`
	Part2   string `json:"part2"`
	Part3   string `json:"part3"`
	Title   string `json:"title"`
	Context string `json:"context"`
}

// legacyRecord accepts both the current keys and the short keys older
// story files were written with.
type legacyRecord struct {
	Part1   *string `json:"part1"`
	Part2   *string `json:"part2"`
	Part3   *string `json:"part3"`
	Title   *string `json:"title"`
	Context *string `json:"context"`

	P1  *string `json:"p1"`
	P2  *string `json:"p2"`
	P3  *string `json:"p3"`
	T   *string `json:"t"`
	Ctx *string `json:"ctx"`
}

// UnmarshalJSON reads a record, preferring current keys over legacy ones.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw legacyRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Record{
		Part1:   pick(raw.Part1, raw.P1),
		Part2:   pick(raw.Part2, raw.P2),
		Part3:   pick(raw.Part3, raw.P3),
		Title:   pick(raw.Title, raw.T),
		Context: pick(raw.Context, raw.Ctx),
	}
	return nil
}

func pick(current, legacy *string) string {
	if current != nil {
		return *current
	}
	if legacy != nil {
		return *legacy
	}
	return ""
}

// Part returns the text of part p (1..3).
func (r Record) Part(p int) (string, error) {
	switch p {
	case 1:
		return r.Part1, nil
	case 2:
		return r.Part2, nil
	case 3:
		return r.Part3, nil
	}
	return "", ValidatePart(p)
}

// WithPart returns a copy of r with part p replaced.
func (r Record) WithPart(p int, text string) (Record, error) {
	switch p {
	case 1:
		r.Part1 = text
	case 2:
		r.Part2 = text
	case 3:
		r.Part3 = text
	default:
		return r, ValidatePart(p)
	}
	return r, nil
}

// Empty reports whether no part has been drafted.
func (r Record) Empty() bool {
	return r.Part1 == "" && r.Part2 == "" && r.Part3 == ""
}

// ValidatePart returns INVALID_REQUEST unless p is 1, 2 or 3.
func ValidatePart(p int) error {
	if p < 1 || p > Parts {
		return errors.NewInvalidRequest("part must be 1, 2, or 3")
	}
	return nil
}
