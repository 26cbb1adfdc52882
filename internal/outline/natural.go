package outline

import (
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// token is one run of a natural-order key: either a number or lowercased text.
type token struct {
	numeric bool
	num     uint64
	text    string
}

// Key is the natural-order comparison key of a label. It is used only for sorting.
type Key []token

// NaturalKey splits label into maximal runs of ASCII digits and non-digits.
// Digit runs compare as integers, text runs case-insensitively.
// It fails only when a digit run does not fit in a uint64.
func NaturalKey(label string) (Key, error) {
	var key Key
	start := 0
	for start < len(label) {
		end := start
		digits := isDigit(label[start])
		for end < len(label) && isDigit(label[end]) == digits {
			if digits {
				end++
				continue
			}
			_, size := utf8.DecodeRuneInString(label[end:])
			end += size
		}

		run := label[start:end]
		if digits {
			n, err := strconv.ParseUint(run, 10, 64)
			if err != nil {
				return nil, err
			}
			key = append(key, token{numeric: true, num: n})
		} else {
			key = append(key, token{text: strings.ToLower(run)})
		}
		start = end
	}
	return key, nil
}

// Compare returns -1, 0, or 1. At the same position a number sorts before text,
// and a key that is a prefix of another sorts first.
func (k Key) Compare(other Key) int {
	for i := 0; i < len(k) && i < len(other); i++ {
		a, b := k[i], other[i]
		switch {
		case a.numeric && b.numeric:
			if a.num != b.num {
				if a.num < b.num {
					return -1
				}
				return 1
			}
		case a.numeric != b.numeric:
			if a.numeric {
				return -1
			}
			return 1
		default:
			if c := strings.Compare(a.text, b.text); c != 0 {
				return c
			}
		}
	}
	switch {
	case len(k) < len(other):
		return -1
	case len(k) > len(other):
		return 1
	}
	return 0
}

// SortLabels returns labels in natural order. If any label's key cannot be
// extracted, the whole set is ordered case-insensitively instead so relative
// order stays consistent. Labels with equal keys are ordered by their raw text.
func SortLabels(labels []string) []string {
	sorted := make([]string, len(labels))
	copy(sorted, labels)

	keys := make(map[string]Key, len(labels))
	natural := true
	for _, l := range labels {
		k, err := NaturalKey(l)
		if err != nil {
			natural = false
			break
		}
		keys[l] = k
	}

	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		var c int
		if natural {
			c = keys[a].Compare(keys[b])
		} else {
			c = strings.Compare(strings.ToLower(a), strings.ToLower(b))
		}
		if c != 0 {
			return c < 0
		}
		return a < b
	})
	return sorted
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
