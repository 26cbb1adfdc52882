package outline

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleOutline = `{
  "episodic_arc": {
    "block_10": {
      "episodes": {
        "ep_1": {"title": "Late Arc", "event": "storm", "key_point": "loss"}
      }
    },
    "block_2": {
      "episodes": {
        "ep_10": {"title": "Ten", "event": "duel"},
        "ep_2": {"event": "meeting", "key_point": "trust"},
        "ep_1": {"title": "Opening", "event": "arrival", "key_point": "the seventh sense"}
      }
    }
  }
}`

func TestBuild_OrderAndIndices(t *testing.T) {
	idx := Build([]byte(sampleOutline))

	require.Len(t, idx.Chapters, 4)
	titles := make([]string, 0, len(idx.Chapters))
	for i, ch := range idx.Chapters {
		require.Equal(t, i, ch.Index, "indices must be contiguous from 0")
		titles = append(titles, ch.Title)
	}
	// block_2 sorts before block_10; episodes ep_1, ep_2, ep_10; counter does not reset per arc.
	require.Equal(t, []string{"Opening", "Episode 2", "Ten", "Late Arc"}, titles)
	require.Equal(t, "block_10", idx.Chapters[3].Arc)
	require.Equal(t, "ep_1", idx.Chapters[3].Episode)
}

func TestBuild_ContextTemplateAndDefaults(t *testing.T) {
	idx := Build([]byte(sampleOutline))

	require.Equal(t, "Event: arrival\nKey Point: the seventh sense", idx.Chapters[0].Context)
	require.Equal(t, "Event: meeting\nKey Point: trust", idx.Chapters[1].Context)
	require.Equal(t, "Event: duel\nKey Point: -", idx.Chapters[2].Context)
}

func TestBuild_Deterministic(t *testing.T) {
	var b strings.Builder
	b.WriteString(`{"episodic_arc": {`)
	for a := 1; a <= 6; a++ {
		if a > 1 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, `"arc%d": {"episodes": {`, a)
		for e := 1; e <= 12; e++ {
			if e > 1 {
				b.WriteString(",")
			}
			fmt.Fprintf(&b, `"ep%d": {"title": "A%dE%d"}`, e, a, e)
		}
		b.WriteString("}}")
	}
	b.WriteString("}}")
	raw := []byte(b.String())

	first := Build(raw)
	require.Len(t, first.Chapters, 72)
	for i := 0; i < 20; i++ {
		require.Equal(t, first, Build(raw))
	}
	require.Equal(t, "A1E1", first.Chapters[0].Title)
	require.Equal(t, "A1E12", first.Chapters[11].Title)
	require.Equal(t, "A2E1", first.Chapters[12].Title)
}

func TestBuild_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{"empty", "", 0},
		{"not json", "{oops", 0},
		{"missing root key", `{"arcs": {}}`, 0},
		{"root not object", `{"episodic_arc": []}`, 0},
		{"arc not object skipped", `{"episodic_arc": {"a1": 5, "a2": {"episodes": {"e1": {}}}}}`, 1},
		{"episodes not object skipped", `{"episodic_arc": {"a1": {"episodes": "x"}, "a2": {"episodes": {"e1": {}}}}}`, 1},
		{"episode not object keeps defaults", `{"episodic_arc": {"a1": {"episodes": {"e1": "junk", "e2": {}}}}}`, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := Build([]byte(tt.raw))
			require.Len(t, idx.Chapters, tt.want)
		})
	}
}

func TestBuild_NonStringFieldsDefault(t *testing.T) {
	idx := Build([]byte(`{"episodic_arc": {"a": {"episodes": {"e1": {"title": 7, "event": null, "key_point": ["x"]}}}}}`))

	require.Len(t, idx.Chapters, 1)
	require.Equal(t, "Episode 1", idx.Chapters[0].Title)
	require.Equal(t, "Event: -\nKey Point: -", idx.Chapters[0].Context)
}

func TestBuild_EmptyTitleKept(t *testing.T) {
	idx := Build([]byte(`{"episodic_arc": {"a": {"episodes": {"e1": {"title": ""}}}}}`))
	require.Equal(t, "", idx.Chapters[0].Title)
}

func TestIndex_TotalAndLookup(t *testing.T) {
	empty := Build(nil)
	require.Equal(t, 50, empty.Total(50))

	title, ctx := empty.Lookup(4)
	require.Equal(t, "Episode 5", title)
	require.Equal(t, "", ctx)

	idx := Build([]byte(sampleOutline))
	require.Equal(t, 4, idx.Total(50))
	title, ctx = idx.Lookup(0)
	require.Equal(t, "Opening", title)
	require.Contains(t, ctx, "arrival")
}
