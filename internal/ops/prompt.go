package ops

import (
	"fmt"
	"strings"

	"github.com/hpungsan/loom/internal/draft"
	"github.com/hpungsan/loom/internal/outline"
	"github.com/hpungsan/loom/internal/prose"
)

// DefaultContinuationWindow is how many trailing runes of the previous part
// are carried into the next part's prompt.
const DefaultContinuationWindow = 2500

const promptDelimiter = "--------------------------------------------------"

// ComposePrompt assembles the generation prompt for one part of chapter
// index. The block order is fixed: writing rules, the reference database,
// the chapter header, the continuation, then the task line.
func ComposePrompt(bundle *outline.Bundle, index int, rec draft.Record, part, window int) string {
	if bundle == nil {
		bundle = &outline.Bundle{}
	}

	var b strings.Builder
	b.WriteString("*** SYSTEM: SERIAL NOVEL ENGINE ***\n")
	b.WriteString(bundle.WritingRules)
	b.WriteString("\n\n")

	b.WriteString("*** DATABASE ***\n")
	b.WriteString(bundle.CoreLore)
	b.WriteString("\n")
	b.WriteString(bundle.Characters)
	b.WriteString("\n")
	b.WriteString(bundle.World)
	b.WriteString("\n")

	b.WriteString(promptDelimiter + "\n")
	fmt.Fprintf(&b, "CURRENT EPISODE: %d | TITLE: %s\n", index+1, rec.Title)
	fmt.Fprintf(&b, "SCENE EVENT: %s\n", rec.Context)
	fmt.Fprintf(&b, "PREVIOUS CONTEXT: %s\n", Continuation(rec, part, window))
	b.WriteString(promptDelimiter + "\n")

	fmt.Fprintf(&b, "TASK: Write the prose for PART %d/%d, strictly grounded in the database above.\n", part, draft.Parts)
	b.WriteString("Begin the narration:")
	return b.String()
}

// Continuation returns the labeled tail of the part preceding part, or ""
// for part 1.
func Continuation(rec draft.Record, part, window int) string {
	if window <= 0 {
		window = DefaultContinuationWindow
	}
	switch part {
	case 2:
		return "CONTINUE FROM PART 1: " + prose.Tail(rec.Part1, window)
	case 3:
		return "CONTINUE FROM PART 2: " + prose.Tail(rec.Part2, window)
	}
	return ""
}
