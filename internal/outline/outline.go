package outline

import (
	"encoding/json"
	"fmt"
)

// Chapter is one flattened episode of the outline.
type Chapter struct {
	// Index is the zero-based position across all arcs
	Index int `json:"index"`

	// Title is the episode title, or "Episode N" when the outline has none
	Title string `json:"title"`

	// Context is the two-line event / key point synthesis used in prompts
	Context string `json:"context"`

	// Arc and Episode are the outline labels this chapter came from
	Arc     string `json:"arc"`
	Episode string `json:"episode"`
}

// Index is the ordered chapter sequence built from an outline.
type Index struct {
	Chapters []Chapter
}

// Build flattens an Episodic_Arc document into an ordered chapter sequence.
//
// Arcs are ordered by SortLabels, then episodes within each arc; a single
// counter runs across arcs. Malformed pieces are skipped, never fatal: an
// unparsable document yields zero chapters, an arc that is not an object is
// skipped, and an episode that is not an object keeps all default fields.
func Build(raw []byte) Index {
	var doc struct {
		EpisodicArc map[string]json.RawMessage `json:"episodic_arc"`
	}
	if len(raw) == 0 || json.Unmarshal(raw, &doc) != nil {
		return Index{}
	}

	arcs := make(map[string]map[string]json.RawMessage, len(doc.EpisodicArc))
	arcLabels := make([]string, 0, len(doc.EpisodicArc))
	for label, rawArc := range doc.EpisodicArc {
		var arc struct {
			Episodes map[string]json.RawMessage `json:"episodes"`
		}
		if json.Unmarshal(rawArc, &arc) != nil {
			continue
		}
		arcs[label] = arc.Episodes
		arcLabels = append(arcLabels, label)
	}

	var idx Index
	n := 0
	for _, arcLabel := range SortLabels(arcLabels) {
		episodes := arcs[arcLabel]
		epLabels := make([]string, 0, len(episodes))
		for label := range episodes {
			epLabels = append(epLabels, label)
		}
		for _, epLabel := range SortLabels(epLabels) {
			ep := parseEpisode(episodes[epLabel])

			title := fmt.Sprintf("Episode %d", n+1)
			if ep.Title != nil {
				title = *ep.Title
			}
			idx.Chapters = append(idx.Chapters, Chapter{
				Index:   n,
				Title:   title,
				Context: FormatContext(stringOr(ep.Event, "-"), stringOr(ep.KeyPoint, "-")),
				Arc:     arcLabel,
				Episode: epLabel,
			})
			n++
		}
	}
	return idx
}

// FormatContext renders the chapter context summary.
func FormatContext(event, keyPoint string) string {
	return fmt.Sprintf("Event: %s\nKey Point: %s", event, keyPoint)
}

// Total returns the number of chapters, or defaultCount when the outline is empty.
func (i Index) Total(defaultCount int) int {
	if len(i.Chapters) > 0 {
		return len(i.Chapters)
	}
	return defaultCount
}

// Lookup returns the title and context for chapter n. Indices past the built
// chapters (the fallback range) get a placeholder title and empty context.
func (i Index) Lookup(n int) (title, context string) {
	if n >= 0 && n < len(i.Chapters) {
		return i.Chapters[n].Title, i.Chapters[n].Context
	}
	return fmt.Sprintf("Episode %d", n+1), ""
}

type episode struct {
	Title    *string
	Event    *string
	KeyPoint *string
}

// parseEpisode reads the known string fields of an episode object. Anything
// that is not an object, or a field that is not a string, is treated as absent.
func parseEpisode(raw json.RawMessage) episode {
	var fields map[string]json.RawMessage
	if json.Unmarshal(raw, &fields) != nil {
		return episode{}
	}
	return episode{
		Title:    stringField(fields, "title"),
		Event:    stringField(fields, "event"),
		KeyPoint: stringField(fields, "key_point"),
	}
}

func stringField(fields map[string]json.RawMessage, name string) *string {
	raw, ok := fields[name]
	if !ok || string(raw) == "null" {
		return nil
	}
	var s string
	if json.Unmarshal(raw, &s) != nil {
		return nil
	}
	return &s
}

func stringOr(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}
