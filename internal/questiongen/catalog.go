package questiongen

import (
	_ "embed"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	types "github.com/yungbote/exampaper-backend/internal/domain"
)

//go:embed prompts.yaml
var promptsYAML []byte

type Catalog struct {
	Version      int                               `yaml:"version"`
	System       string                            `yaml:"system"`
	Difficulty   map[types.Difficulty]string       `yaml:"difficulty"`
	Requirements []string                          `yaml:"requirements"`
	Types        map[types.QuestionType]TypePrompt `yaml:"types"`
}

type TypePrompt struct {
	Key         string `yaml:"key"`
	Instruction string `yaml:"instruction"`
}

var (
	catalogOnce sync.Once
	catalog     *Catalog
	catalogErr  error
)

// DefaultCatalog parses the embedded prompt catalog once.
func DefaultCatalog() (*Catalog, error) {
	catalogOnce.Do(func() {
		catalog, catalogErr = ParseCatalog(promptsYAML)
	})
	return catalog, catalogErr
}

func ParseCatalog(raw []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse prompt catalog: %w", err)
	}
	if strings.TrimSpace(c.System) == "" {
		return nil, fmt.Errorf("prompt catalog: system prompt is empty")
	}
	for _, t := range types.QuestionTypes {
		tp, ok := c.Types[t]
		if !ok || strings.TrimSpace(tp.Instruction) == "" || tp.Key == "" {
			return nil, fmt.Errorf("prompt catalog: question type %q is incomplete", t)
		}
	}
	if _, ok := c.Difficulty[types.DifficultyMedium]; !ok {
		return nil, fmt.Errorf("prompt catalog: medium difficulty guidance is required")
	}
	return &c, nil
}

func (c *Catalog) guidance(d types.Difficulty) string {
	if g, ok := c.Difficulty[d]; ok {
		return g
	}
	return c.Difficulty[types.DifficultyMedium]
}

type promptInput struct {
	Title        string
	Units        []int
	Difficulty   types.Difficulty
	Instructions string
	Context      string
}

// UserPrompt renders the request for one question type.
func (c *Catalog) UserPrompt(t types.QuestionType, count int, in promptInput) string {
	unitNames := make([]string, 0, len(in.Units))
	for _, u := range in.Units {
		unitNames = append(unitNames, "Unit "+strconv.Itoa(u))
	}
	difficulty := in.Difficulty
	if !difficulty.Valid() {
		difficulty = types.DifficultyMedium
	}

	var b strings.Builder
	if in.Title != "" {
		fmt.Fprintf(&b, "PAPER: %s\n", in.Title)
	}
	fmt.Fprintf(&b, "UNITS: %s\n", strings.Join(unitNames, ", "))
	fmt.Fprintf(&b, "DIFFICULTY: %s\n\n", strings.ToUpper(string(difficulty)))
	fmt.Fprintf(&b, "Difficulty guidelines: %s\n\n", c.guidance(difficulty))
	if in.Context != "" {
		fmt.Fprintf(&b, "REFERENCE CONTENT:\n%s\n\n", in.Context)
	}
	if in.Instructions != "" {
		fmt.Fprintf(&b, "ADDITIONAL INSTRUCTIONS: %s\n\n", in.Instructions)
	}
	b.WriteString("REQUIREMENTS:\n")
	for i, r := range c.Requirements {
		fmt.Fprintf(&b, "%d. %s\n", i+1, r)
	}
	b.WriteString("\n")
	b.WriteString(strings.ReplaceAll(c.Types[t].Instruction, "{count}", strconv.Itoa(count)))
	return b.String()
}
