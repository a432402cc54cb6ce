package questiongen

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/yungbote/exampaper-backend/internal/indexing"
)

const (
	DefaultMaxContext = 8000
	// A truncated chunk is only worth adding with more than this many runes left.
	minTailRunes = 100
)

// BuildContext renders syllabus text and retrieved chunks as the reference
// content of a prompt. Syllabi come first in unit order and are never cut.
// Chunks follow best first as "[Unit N] content" until maxLen runes are used.
func BuildContext(hits []indexing.Hit, syllabi map[int]string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultMaxContext
	}
	var parts []string

	units := make([]int, 0, len(syllabi))
	for u, s := range syllabi {
		if strings.TrimSpace(s) != "" {
			units = append(units, u)
		}
	}
	sort.Ints(units)
	for _, u := range units {
		parts = append(parts, fmt.Sprintf("[Unit %d Syllabus] %s", u, strings.TrimSpace(syllabi[u])))
	}

	sorted := append([]indexing.Hit(nil), hits...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Similarity > sorted[j].Similarity })

	total := 0
	for _, h := range sorted {
		text := fmt.Sprintf("[Unit %d] %s", h.UnitNumber, h.Content)
		n := utf8.RuneCountInString(text)
		if total+n > maxLen {
			remaining := maxLen - total
			if remaining > minTailRunes {
				parts = append(parts, string([]rune(text)[:remaining])+"...")
			}
			break
		}
		parts = append(parts, text)
		total += n
	}
	return strings.Join(parts, "\n\n")
}
