package promptstyle

import "strings"

const marker = "EXAMPAPER_PROMPT_STYLE_V1"

// ApplySystem prepends a short guidance block to system prompts. Prompts
// that already carry the block are returned unchanged.
func ApplySystem(system string, mode string) string {
	base := strings.TrimSpace(system)
	if base == "" || strings.Contains(base, marker) {
		return base
	}
	mode = strings.ToLower(strings.TrimSpace(mode))

	var b strings.Builder
	b.WriteString(marker)
	b.WriteString("\nYou write assessment material for university courses.")
	b.WriteString("\nFollow the system and user instructions precisely.")
	b.WriteString("\nUse only the provided course content as grounding; do not invent topics outside it.")
	if mode == "json" {
		b.WriteString("\nReturn a single JSON object that conforms to the schema and contains no extra keys or commentary.")
	} else {
		b.WriteString("\nBe concise.")
	}
	b.WriteString("\n---\n")
	b.WriteString(base)
	return b.String()
}
