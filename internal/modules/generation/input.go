package generation

import (
	"sort"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	types "github.com/yungbote/exampaper-backend/internal/domain"
	"github.com/yungbote/exampaper-backend/internal/platform/apierr"
)

type DraftInput struct {
	SubjectID          uuid.UUID
	Title              string
	Units              []int
	Difficulty         string
	QuestionConfig     map[string]int
	CustomInstructions string
	InlineSyllabi      map[int]string
}

// GenerateInput overrides the draft's settings. Zero fields keep the stored value.
type GenerateInput struct {
	Units              []int
	Difficulty         string
	QuestionConfig     map[string]int
	CustomInstructions *string
	InlineSyllabi      map[int]string
}

type paperShape struct {
	units        []int
	difficulty   types.Difficulty
	config       types.QuestionConfig
	instructions string
	syllabi      types.InlineSyllabi
}

func validateUnits(units []int) ([]int, error) {
	if len(units) == 0 {
		return nil, apierr.InvalidInput("units must not be empty")
	}
	seen := make(map[int]struct{}, len(units))
	out := make([]int, 0, len(units))
	for _, u := range units {
		if u < 1 {
			return nil, apierr.InvalidInput("unit %d must be >= 1", u)
		}
		if _, dup := seen[u]; dup {
			return nil, apierr.InvalidInput("unit %d is listed twice", u)
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out, nil
}

func validateDifficulty(raw string) (types.Difficulty, error) {
	d := types.Difficulty(strings.ToLower(strings.TrimSpace(raw)))
	if !d.Valid() {
		return "", apierr.InvalidInput("difficulty must be one of easy, medium, hard")
	}
	return d, nil
}

func validateConfig(raw map[string]int) (types.QuestionConfig, error) {
	cfg := types.QuestionConfig{}
	for k, v := range raw {
		t := types.QuestionType(strings.ToLower(strings.TrimSpace(k)))
		if !t.Valid() {
			return nil, apierr.InvalidInput("unknown question type %q", k)
		}
		if v < 0 {
			return nil, apierr.InvalidInput("question count for %s must be >= 0", t)
		}
		cfg[t] += v
	}
	if cfg.Total() <= 0 {
		return nil, apierr.InvalidInput("question_config must request at least one question")
	}
	return cfg, nil
}

func validateSyllabi(raw map[int]string, units []int) types.InlineSyllabi {
	allowed := make(map[int]struct{}, len(units))
	for _, u := range units {
		allowed[u] = struct{}{}
	}
	out := types.InlineSyllabi{}
	for u, text := range raw {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if _, ok := allowed[u]; !ok {
			continue
		}
		out[u] = text
	}
	return out
}

func (in DraftInput) shape() (paperShape, error) {
	if in.SubjectID == uuid.Nil {
		return paperShape{}, apierr.InvalidInput("subject_id is required")
	}
	if strings.TrimSpace(in.Title) == "" {
		return paperShape{}, apierr.InvalidInput("title is required")
	}
	units, err := validateUnits(in.Units)
	if err != nil {
		return paperShape{}, err
	}
	diff, err := validateDifficulty(in.Difficulty)
	if err != nil {
		return paperShape{}, err
	}
	cfg, err := validateConfig(in.QuestionConfig)
	if err != nil {
		return paperShape{}, err
	}
	return paperShape{
		units:        units,
		difficulty:   diff,
		config:       cfg,
		instructions: strings.TrimSpace(in.CustomInstructions),
		syllabi:      validateSyllabi(in.InlineSyllabi, units),
	}, nil
}

// merge applies the overrides on top of the stored paper and validates the result.
func (in *GenerateInput) merge(p *types.Paper) (paperShape, error) {
	shape := paperShape{
		units:        []int(p.Units),
		difficulty:   p.Difficulty,
		config:       p.Config(),
		instructions: p.CustomInstructions,
		syllabi:      p.Syllabi(),
	}
	if in == nil {
		return shape, nil
	}
	var err error
	if len(in.Units) > 0 {
		if shape.units, err = validateUnits(in.Units); err != nil {
			return shape, err
		}
	}
	if strings.TrimSpace(in.Difficulty) != "" {
		if shape.difficulty, err = validateDifficulty(in.Difficulty); err != nil {
			return shape, err
		}
	}
	if len(in.QuestionConfig) > 0 {
		if shape.config, err = validateConfig(in.QuestionConfig); err != nil {
			return shape, err
		}
	}
	if in.CustomInstructions != nil {
		shape.instructions = strings.TrimSpace(*in.CustomInstructions)
	}
	if in.InlineSyllabi != nil {
		merged := map[int]string{}
		for u, s := range shape.syllabi {
			merged[u] = s
		}
		for u, s := range in.InlineSyllabi {
			merged[u] = s
		}
		shape.syllabi = types.InlineSyllabi(merged)
	}
	shape.syllabi = validateSyllabi(shape.syllabi, shape.units)
	return shape, nil
}

func (s paperShape) updates() map[string]interface{} {
	return map[string]interface{}{
		"units":               datatypes.NewJSONSlice(s.units),
		"difficulty":          s.difficulty,
		"question_config":     datatypes.NewJSONType(s.config),
		"custom_instructions": s.instructions,
		"inline_syllabi":      datatypes.NewJSONType(s.syllabi),
	}
}

func sortedInts(in []int) []int {
	out := append([]int(nil), in...)
	sort.Ints(out)
	return out
}
