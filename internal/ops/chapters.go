package ops

import (
	"github.com/hpungsan/loom/internal/draft"
	"github.com/hpungsan/loom/internal/errors"
)

// ChapterSummary is a chapter's outline data and draft sizes.
type ChapterSummary struct {
	Index   int         `json:"index"`
	Title   string      `json:"title"`
	Drafted int         `json:"drafted_parts"`
	Parts   []PartStats `json:"parts"`
}

// ListInput contains parameters for the ListChapters operation.
type ListInput struct {
	Limit  int // default: 50, max: 500
	Offset int // default: 0
}

// ListOutput contains the result of the ListChapters operation.
type ListOutput struct {
	Items      []ChapterSummary `json:"items"`
	Pagination Pagination       `json:"pagination"`
}

// ListChapters summarizes chapters in index order.
func ListChapters(store *draft.Store, input ListInput) (*ListOutput, error) {
	limit := clampLimit(input.Limit, DefaultListLimit, MaxListLimit)
	offset := max(input.Offset, 0)

	records := store.All()
	total := len(records)

	items := []ChapterSummary{}
	for i := offset; i < total && len(items) < limit; i++ {
		rec := records[i]
		stats := partStats(rec)
		drafted := 0
		for _, s := range stats {
			if s.Chars > 0 {
				drafted++
			}
		}
		items = append(items, ChapterSummary{
			Index:   i,
			Title:   rec.Title,
			Drafted: drafted,
			Parts:   stats,
		})
	}

	return &ListOutput{
		Items: items,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(items) < total,
			Total:   total,
		},
	}, nil
}

// FetchInput contains parameters for the Fetch operation.
type FetchInput struct {
	Chapter int // zero-based index
}

// FetchOutput contains the result of the Fetch operation.
type FetchOutput struct {
	Index   int         `json:"index"`
	Total   int         `json:"total"`
	Title   string      `json:"title"`
	Context string      `json:"context"`
	Part1   string      `json:"part1"`
	Part2   string      `json:"part2"`
	Part3   string      `json:"part3"`
	Parts   []PartStats `json:"parts"`
}

// Fetch loads one chapter's full record.
func Fetch(store *draft.Store, input FetchInput) (*FetchOutput, error) {
	rec, err := store.Get(input.Chapter)
	if err != nil {
		return nil, err
	}
	return &FetchOutput{
		Index:   input.Chapter,
		Total:   store.Total(),
		Title:   rec.Title,
		Context: rec.Context,
		Part1:   rec.Part1,
		Part2:   rec.Part2,
		Part3:   rec.Part3,
		Parts:   partStats(rec),
	}, nil
}

// UpdateInput contains parameters for the Update operation.
type UpdateInput struct {
	Chapter int
	Part    int
	Text    string
}

// UpdateOutput contains the result of the Update operation.
type UpdateOutput struct {
	Index int `json:"index"`
	PartStats
}

// Update replaces one part with caller-supplied text and saves the store.
// A failed save leaves the edit in memory and returns PERSISTENCE_FAILURE.
func Update(store *draft.Store, input UpdateInput) (*UpdateOutput, error) {
	if err := draft.ValidatePart(input.Part); err != nil {
		return nil, err
	}
	if err := store.SetPart(input.Chapter, input.Part, input.Text); err != nil {
		return nil, err
	}
	if err := store.Persist(); err != nil {
		return nil, err
	}

	rec, err := store.Get(input.Chapter)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return &UpdateOutput{
		Index:     input.Chapter,
		PartStats: partStats(rec)[input.Part-1],
	}, nil
}
