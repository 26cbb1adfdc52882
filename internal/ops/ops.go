package ops

import (
	"github.com/hpungsan/loom/internal/draft"
	"github.com/hpungsan/loom/internal/prose"
)

// Pagination limits
const (
	DefaultListLimit    = 50
	MaxListLimit        = 500
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// PartStats describes one drafted part without its text.
type PartStats struct {
	Part           int `json:"part"`
	Chars          int `json:"chars"`
	TokensEstimate int `json:"tokens_estimate"`
}

func partStats(rec draft.Record) []PartStats {
	out := make([]PartStats, 0, draft.Parts)
	for p := 1; p <= draft.Parts; p++ {
		text, _ := rec.Part(p)
		out = append(out, PartStats{
			Part:           p,
			Chars:          prose.CountChars(text),
			TokensEstimate: prose.EstimateTokens(text),
		})
	}
	return out
}

func clampLimit(limit, def, maxLimit int) int {
	if limit <= 0 {
		return def
	}
	return min(limit, maxLimit)
}
