package prose

import (
	"regexp"
	"strings"
)

// ws is horizontal whitespace plus every other rune strings.TrimSpace removes
// except '\n', so a line hidden behind a leading separator still matches.
const ws = `[\p{Zs}\t\v\f\r\x{85}\x{2028}\x{2029}]`

// headingLine matches a whole line that is a markdown heading (# through ######
// followed by whitespace or end of line).
var headingLine = regexp.MustCompile(`(?m)^` + ws + `*#{1,6}(?:` + ws + `.*)?$`)

// numberingLine matches a whole line restating chapter or part numbering, e.g.
// "Chapter 3", "PART 2: The Development", "Ch. 4", "ตอนที่ 5", "บทที่ ๓".
var numberingLine = regexp.MustCompile(`(?mi)^` + ws + `*(?:chapter|ch\.|part|episode|บทที่|ตอนที่|ตอน)` + ws + `*\p{Nd}+.*$`)

// ordinalLine matches a bare ordinal line such as "3", "3." or "3)".
var ordinalLine = regexp.MustCompile(`(?m)^` + ws + `*\p{Nd}+[.)]?` + ws + `*$`)

// blankRuns matches three or more consecutive newlines, allowing whitespace-only lines.
var blankRuns = regexp.MustCompile(`\n(?:` + ws + `*\n){2,}`)

// Sanitize removes generation artifacts from backend output: emphasis asterisks,
// heading lines, and lines that restate chapter or part numbering. It never fails
// and applying it twice gives the same result as applying it once.
func Sanitize(text string) string {
	if text == "" {
		return ""
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")

	// Emphasis goes first so "**Chapter 3**" is seen as a numbering line.
	text = strings.ReplaceAll(text, "*", "")

	text = headingLine.ReplaceAllString(text, "")
	text = numberingLine.ReplaceAllString(text, "")
	text = ordinalLine.ReplaceAllString(text, "")
	text = blankRuns.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text)
}
