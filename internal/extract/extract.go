// Package extract recovers fenced code blocks (for example ```yaml ... ```)
// from Markdown documents so that the embedded configuration snippets can be
// indexed on their own.
//
// Two strategies are provided. Blocks performs a plain non-greedy pattern
// scan that returns the text between the opening "marker+tag" and the next
// closing marker verbatim. Markdown parses the document as CommonMark and
// returns the bodies of fenced code blocks whose info string names the tag.
package extract

import (
	"iter"
	"regexp"
)

// Fence describes the grammar of a tagged fenced block.
type Fence struct {
	// Marker opens and closes the block (e.g. "```").
	Marker string
	// Tag is the language marker written straight after the opening Marker.
	Tag string
}

// YAML is the fence of a Markdown YAML code block.
var YAML = Fence{Marker: "```", Tag: "yaml"}

// Pattern returns the compiled non-greedy scan for f. The opening sequence is
// Marker immediately followed by Tag; the block ends at the next Marker.
func (f Fence) Pattern() *regexp.Regexp {
	return regexp.MustCompile(regexp.QuoteMeta(f.Marker+f.Tag) + `([\w\W]*?)` + regexp.QuoteMeta(f.Marker))
}

// Blocks returns the inner text of every f-fenced block in text, in order of
// appearance. The sequence is lazy and may be ranged over any number of
// times. An opening fence with no closing marker after it yields nothing.
func Blocks(text string, f Fence) iter.Seq[string] {
	re := f.Pattern()
	return func(yield func(string) bool) {
		pos := 0
		for pos <= len(text) {
			loc := re.FindStringSubmatchIndex(text[pos:])
			if loc == nil {
				return
			}
			if !yield(text[pos+loc[2] : pos+loc[3]]) {
				return
			}
			next := pos + loc[1]
			if next == pos {
				// Zero-width match is impossible with a non-empty marker,
				// but never spin on a degenerate Fence.
				next++
			}
			pos = next
		}
	}
}

// All collects Blocks into a slice. A document without blocks returns an
// empty, non-nil slice.
func All(text string, f Fence) []string {
	out := []string{}
	for b := range Blocks(text, f) {
		out = append(out, b)
	}
	return out
}
