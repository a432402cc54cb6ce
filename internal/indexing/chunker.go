package indexing

import (
	"strings"
	"unicode/utf8"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// DefaultSeparators are tried in order: paragraphs, lines, sentences, words.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " "}

// Splitter cuts text into chunks of at most Size runes. Adjacent chunks share
// up to Overlap runes of context.
type Splitter struct {
	Size       int
	Overlap    int
	Separators []string
}

func NewSplitter() Splitter {
	return Splitter{Size: DefaultChunkSize, Overlap: DefaultChunkOverlap, Separators: DefaultSeparators}
}

func (s Splitter) normalized() Splitter {
	if s.Size <= 0 {
		s.Size = DefaultChunkSize
	}
	if s.Overlap < 0 || s.Overlap >= s.Size {
		s.Overlap = 0
	}
	if s.Separators == nil {
		s.Separators = DefaultSeparators
	}
	return s
}

func (s Splitter) Split(text string) []string {
	s = s.normalized()
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return s.split(text, s.Separators)
}

func (s Splitter) split(text string, seps []string) []string {
	sep := ""
	var rest []string
	for i, candidate := range seps {
		if strings.Contains(text, candidate) {
			sep = candidate
			rest = seps[i+1:]
			break
		}
	}
	if sep == "" {
		return windowSplit(text, s.Size, s.Overlap)
	}

	var out, pending []string
	for _, piece := range strings.Split(text, sep) {
		if piece == "" {
			continue
		}
		if runeLen(piece) <= s.Size {
			pending = append(pending, piece)
			continue
		}
		if len(pending) > 0 {
			out = append(out, s.merge(pending, sep)...)
			pending = nil
		}
		out = append(out, s.split(piece, rest)...)
	}
	if len(pending) > 0 {
		out = append(out, s.merge(pending, sep)...)
	}
	return out
}

// merge greedily packs pieces joined by sep into chunks, carrying the tail of
// each chunk into the next one for overlap.
func (s Splitter) merge(pieces []string, sep string) []string {
	sepLen := runeLen(sep)
	var (
		out     []string
		current []string
		total   int
	)
	joinedLen := func(extra int) int {
		if len(current) > 0 {
			return total + sepLen + extra
		}
		return total + extra
	}
	for _, p := range pieces {
		l := runeLen(p)
		if joinedLen(l) > s.Size && len(current) > 0 {
			if chunk := strings.TrimSpace(strings.Join(current, sep)); chunk != "" {
				out = append(out, chunk)
			}
			for len(current) > 0 && (total > s.Overlap || joinedLen(l) > s.Size) {
				total -= runeLen(current[0])
				if len(current) > 1 {
					total -= sepLen
				}
				current = current[1:]
			}
		}
		total = joinedLen(l)
		current = append(current, p)
	}
	if chunk := strings.TrimSpace(strings.Join(current, sep)); chunk != "" {
		out = append(out, chunk)
	}
	return out
}

// windowSplit is the last resort for text with no separator at all.
func windowSplit(text string, size, overlap int) []string {
	r := []rune(text)
	step := size - overlap
	if step <= 0 {
		step = size
	}
	out := make([]string, 0, len(r)/step+1)
	for start := 0; start < len(r); start += step {
		end := start + size
		if end > len(r) {
			end = len(r)
		}
		if p := strings.TrimSpace(string(r[start:end])); p != "" {
			out = append(out, p)
		}
		if end == len(r) {
			break
		}
	}
	return out
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
