package questiongen

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	types "github.com/yungbote/exampaper-backend/internal/domain"
)

func stringSchema() map[string]any { return map[string]any{"type": "string"} }

func stringArraySchema() map[string]any {
	return map[string]any{"type": "array", "items": stringSchema()}
}

func objectSchema(props map[string]any) map[string]any {
	required := make([]string, 0, len(props))
	for _, k := range sortedKeys(props) {
		required = append(required, k)
	}
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

// ItemSchema is the strict shape requested from the model for one question.
// Every property is required so the schema is accepted in strict mode.
func ItemSchema(t types.QuestionType) map[string]any {
	switch t {
	case types.QuestionMCQ:
		return objectSchema(map[string]any{
			"question":       stringSchema(),
			"options":        stringArraySchema(),
			"correct_answer": stringSchema(),
			"explanation":    stringSchema(),
			"unit":           map[string]any{"type": "integer"},
		})
	case types.QuestionFillBlanks:
		return objectSchema(map[string]any{
			"question": stringSchema(),
			"answer":   stringSchema(),
			"unit":     map[string]any{"type": "integer"},
		})
	default:
		return objectSchema(map[string]any{
			"question":        stringSchema(),
			"expected_points": stringArraySchema(),
			"marks":           map[string]any{"type": "integer"},
			"unit":            map[string]any{"type": "integer"},
		})
	}
}

// ResponseSchema wraps the item schema in the {key: [...]} envelope.
func ResponseSchema(t types.QuestionType, key string) map[string]any {
	return objectSchema(map[string]any{
		key: map[string]any{"type": "array", "items": ItemSchema(t)},
	})
}

// validationSchema adds the per-type cardinality and range rules that strict
// mode cannot express.
func validationSchema(t types.QuestionType) map[string]any {
	s := ItemSchema(t)
	props := s["properties"].(map[string]any)
	nonEmpty := map[string]any{"type": "string", "minLength": 1}
	props["question"] = nonEmpty
	switch t {
	case types.QuestionMCQ:
		props["options"] = map[string]any{"type": "array", "items": nonEmpty, "minItems": 4, "maxItems": 4, "uniqueItems": true}
		props["correct_answer"] = nonEmpty
	case types.QuestionFillBlanks:
		props["question"] = map[string]any{"type": "string", "pattern": "___"}
		props["answer"] = nonEmpty
	case types.QuestionShort:
		props["expected_points"] = map[string]any{"type": "array", "items": nonEmpty, "minItems": 3, "maxItems": 5}
		props["marks"] = map[string]any{"type": "integer", "minimum": 2, "maximum": 5}
	case types.QuestionLong:
		props["expected_points"] = map[string]any{"type": "array", "items": nonEmpty, "minItems": 6, "maxItems": 10}
		props["marks"] = map[string]any{"type": "integer", "minimum": 10}
	}
	return s
}

var (
	compiledMu sync.Mutex
	compiled   = map[types.QuestionType]*jsonschema.Schema{}
)

func compiledValidator(t types.QuestionType) (*jsonschema.Schema, error) {
	compiledMu.Lock()
	defer compiledMu.Unlock()
	if s, ok := compiled[t]; ok {
		return s, nil
	}
	raw, err := json.Marshal(validationSchema(t))
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	name := string(t) + ".json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	s, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	compiled[t] = s
	return s, nil
}
