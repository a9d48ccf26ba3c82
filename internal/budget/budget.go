// Package budget keeps text within token limits. Partition splits oversize
// text before it is embedded, Pack assembles scored matches into a context
// string bounded by a token budget, and CheckMessages refuses a completion
// request that would not fit the model window.
//
// All counts come from a tokenizer (see internal/tokens); nothing here
// estimates from character counts except the chunk width in Partition.
package budget

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/ciai-go/internal/rag"
)

// Separator precedes every match included in a packed context, the first
// one too. Prompt formatting relies on this framing.
const Separator = "\n---\n"

// ErrBudgetExceeded is returned when a message list is at or above the
// model's maximum context size. No truncation is attempted.
var ErrBudgetExceeded = errors.New("budget: message tokens exceed model context")

// StringCounter counts the tokens of a string under a named encoding.
type StringCounter interface {
	CountString(text, encoding string) (int, error)
}

// MessageCounter counts the tokens of a chat request for a model.
type MessageCounter interface {
	CountMessages(msgs []*schema.Message, model string) (int, error)
}

// Partition returns text as a single unit when it fits maxTokens. Otherwise
// it wraps text into lines of at most
// floor(maxTokens*len(text)/tokens) characters. Character density is not
// uniform, so a chunk may still exceed maxTokens; chunks are not re-counted.
func Partition(counter StringCounter, text string, maxTokens int, encoding string) ([]string, error) {
	n, err := counter.CountString(text, encoding)
	if err != nil {
		return nil, fmt.Errorf("budget: count text: %w", err)
	}
	if n <= maxTokens {
		return []string{text}, nil
	}

	width := maxTokens * utf8.RuneCountInString(text) / n
	if width < 1 {
		width = 1
	}
	return wrap(text, width), nil
}

// wrap fills lines of at most width runes the way a classic paragraph
// filler does. Tabs expand to 8-column stops and every other ASCII
// whitespace character becomes one space, so indentation keeps its length.
// Lines break between words, after a hyphen inside a word, or at a dash
// run; whitespace at a break is dropped. Words longer than width are split,
// after their last hyphen when one falls within the line.
func wrap(text string, width int) []string {
	chunks := splitChunks(normalizeSpace(text))

	var lines []string
	for len(chunks) > 0 {
		// Leading whitespace is kept on the first line only.
		if len(lines) > 0 && isBlank(chunks[0]) {
			chunks = chunks[1:]
		}

		var line [][]rune
		n := 0
		for len(chunks) > 0 && n+len(chunks[0]) <= width {
			line = append(line, chunks[0])
			n += len(chunks[0])
			chunks = chunks[1:]
		}

		if len(chunks) > 0 && len(chunks[0]) > width {
			w := chunks[0]
			end := width - n
			if i := lastIndexRune(w[:end], '-'); i > 0 && slices.ContainsFunc(w[:i], func(r rune) bool { return r != '-' }) {
				end = i + 1
			}
			line = append(line, w[:end])
			chunks[0] = w[end:]
		}

		if len(line) > 0 && isBlank(line[len(line)-1]) {
			line = line[:len(line)-1]
		}
		if len(line) > 0 {
			var b strings.Builder
			for _, c := range line {
				b.WriteString(string(c))
			}
			lines = append(lines, b.String())
		}
	}
	return lines
}

// normalizeSpace expands tabs to 8-column stops and maps the remaining
// ASCII whitespace characters to a space each.
func normalizeSpace(text string) []rune {
	out := make([]rune, 0, len(text))
	col := 0
	for _, r := range text {
		switch r {
		case '\t':
			pad := 8 - col%8
			for range pad {
				out = append(out, ' ')
			}
			col += pad
		case '\n', '\r':
			out = append(out, ' ')
			col = 0
		case '\v', '\f':
			out = append(out, ' ')
			col++
		default:
			out = append(out, r)
			col++
		}
	}
	return out
}

// splitChunks cuts text into space runs and words. A word further splits
// after a hyphen joining two letters ("multi-stage" -> "multi-", "stage")
// and around a dash run such as "--" between two words.
func splitChunks(text []rune) [][]rune {
	var chunks [][]rune
	for p := 0; p < len(text); {
		end := p + 1
		switch {
		case text[p] == ' ':
			for end < len(text) && text[end] == ' ' {
				end++
			}
		case p > 0 && isWordPunct(text[p-1]) && dashRun(text, p) > 0:
			end = p + dashRun(text, p)
		default:
			for ; end < len(text) && text[end] != ' '; end++ {
				if hyphenBreak(text, end) {
					end++
					break
				}
				if isWordPunct(text[end-1]) && dashRun(text, end) > 0 {
					break
				}
			}
		}
		chunks = append(chunks, text[p:end])
		p = end
	}
	return chunks
}

// dashRun returns the length of the run of two or more hyphens at text[i]
// when a word character follows it, and 0 otherwise.
func dashRun(text []rune, i int) int {
	j := i
	for j < len(text) && text[j] == '-' {
		j++
	}
	if j-i < 2 || j == len(text) || !isWord(text[j]) {
		return 0
	}
	return j - i
}

// hyphenBreak reports whether a line may break after text[i]: a hyphen
// preceded by two letters (or letter-hyphen-letter) and followed by a
// letter, an optional hyphen, and another letter.
func hyphenBreak(text []rune, i int) bool {
	if text[i] != '-' {
		return false
	}
	before := (i >= 2 && isLetter(text[i-1]) && isLetter(text[i-2])) ||
		(i >= 3 && isLetter(text[i-1]) && text[i-2] == '-' && isLetter(text[i-3]))
	if !before || i+2 >= len(text) || !isLetter(text[i+1]) {
		return false
	}
	if isLetter(text[i+2]) {
		return true
	}
	return text[i+2] == '-' && i+3 < len(text) && isLetter(text[i+3])
}

func isWord(r rune) bool { return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r) }

func isLetter(r rune) bool { return isWord(r) && !unicode.Is(unicode.Nd, r) }

func isWordPunct(r rune) bool { return isWord(r) || strings.ContainsRune(`!"'&.,?`, r) }

func isBlank(chunk []rune) bool {
	for _, r := range chunk {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

func lastIndexRune(rs []rune, r rune) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if rs[i] == r {
			return i
		}
	}
	return -1
}

// Packed is the result of a packing pass.
type Packed struct {
	// Context is the concatenation of Separator+text for each included match.
	Context string

	// Included is the number of matches concatenated into Context.
	Included int
}

// Pack scans matches in the given order and appends each one whose score is
// at least minScore while the token count of the assembled context stays
// strictly below tokenBudget. A match that does not fit is skipped and the
// scan continues, so a later shorter match may still be included. The pass
// is greedy and never backtracks; the included set is not necessarily the
// best-scoring subset that fits.
func Pack(counter StringCounter, matches []rag.Match, minScore float32, tokenBudget int, encoding string) (Packed, error) {
	var (
		b   strings.Builder
		out Packed
	)
	for _, m := range matches {
		if m.Score < minScore {
			continue
		}
		candidate := b.String() + Separator + m.Metadata.Text
		n, err := counter.CountString(candidate, encoding)
		if err != nil {
			return Packed{}, fmt.Errorf("budget: count context: %w", err)
		}
		if n >= tokenBudget {
			continue
		}
		b.Reset()
		b.WriteString(candidate)
		out.Included++
	}
	out.Context = b.String()
	return out, nil
}

// CheckMessages counts msgs for model and returns the count. It wraps
// ErrBudgetExceeded when the count is greater than or equal to maxTokens.
func CheckMessages(counter MessageCounter, msgs []*schema.Message, model string, maxTokens int) (int, error) {
	n, err := counter.CountMessages(msgs, model)
	if err != nil {
		return 0, fmt.Errorf("budget: count messages: %w", err)
	}
	if n >= maxTokens {
		return n, fmt.Errorf("%w: %d tokens, limit %d", ErrBudgetExceeded, n, maxTokens)
	}
	return n, nil
}
