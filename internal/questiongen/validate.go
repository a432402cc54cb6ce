package questiongen

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	types "github.com/yungbote/exampaper-backend/internal/domain"
)

var blankRun = regexp.MustCompile(`_{3,}`)

// unitSet snaps a model supplied unit onto the paper's units. Unknown units
// fall back to the first requested unit.
type unitSet []int

func (u unitSet) resolve(unit int) int {
	for _, v := range u {
		if v == unit {
			return unit
		}
	}
	if len(u) == 0 {
		return unit
	}
	return u[0]
}

// acceptItems validates raw model items for t and returns those that pass,
// normalized. The count of rejected items is returned for logging.
func acceptItems(t types.QuestionType, raw []any, units unitSet, bundle *types.QuestionBundle) (int, error) {
	schema, err := compiledValidator(t)
	if err != nil {
		return 0, err
	}
	rejected := 0
	for _, item := range raw {
		if err := schema.Validate(item); err != nil {
			rejected++
			continue
		}
		b, err := json.Marshal(item)
		if err != nil {
			rejected++
			continue
		}
		if !acceptOne(t, b, units, bundle) {
			rejected++
		}
	}
	return rejected, nil
}

func acceptOne(t types.QuestionType, b []byte, units unitSet, bundle *types.QuestionBundle) bool {
	switch t {
	case types.QuestionMCQ:
		var q types.MCQ
		if json.Unmarshal(b, &q) != nil {
			return false
		}
		answer, ok := matchOption(q.Options, q.CorrectAnswer)
		if !ok {
			return false
		}
		q.Question = strings.TrimSpace(q.Question)
		q.CorrectAnswer = answer
		q.Explanation = strings.TrimSpace(q.Explanation)
		q.Marks = 1
		q.Unit = units.resolve(q.Unit)
		bundle.MCQ = append(bundle.MCQ, q)
	case types.QuestionFillBlanks:
		var q types.FillBlank
		if json.Unmarshal(b, &q) != nil {
			return false
		}
		if len(blankRun.FindAllStringIndex(q.Question, -1)) != 1 || strings.TrimSpace(q.Answer) == "" {
			return false
		}
		q.Question = strings.TrimSpace(blankRun.ReplaceAllString(q.Question, "___"))
		q.Answer = strings.TrimSpace(q.Answer)
		q.Marks = 1
		q.Unit = units.resolve(q.Unit)
		bundle.FillBlanks = append(bundle.FillBlanks, q)
	case types.QuestionShort:
		var q types.ShortAnswer
		if json.Unmarshal(b, &q) != nil {
			return false
		}
		q.Question = strings.TrimSpace(q.Question)
		q.ExpectedPoints = trimAll(q.ExpectedPoints)
		q.Unit = units.resolve(q.Unit)
		bundle.Short = append(bundle.Short, q)
	case types.QuestionLong:
		var q types.LongAnswer
		if json.Unmarshal(b, &q) != nil {
			return false
		}
		q.Question = strings.TrimSpace(q.Question)
		q.ExpectedPoints = trimAll(q.ExpectedPoints)
		q.Unit = units.resolve(q.Unit)
		bundle.Long = append(bundle.Long, q)
	default:
		return false
	}
	return true
}

// matchOption finds the option the answer refers to, by text or by a leading
// letter such as "b" or "B)". Options must be distinct once trimmed.
func matchOption(options []string, answer string) (string, bool) {
	if len(options) != 4 {
		return "", false
	}
	seen := map[string]struct{}{}
	for _, o := range options {
		k := strings.ToLower(strings.TrimSpace(o))
		if k == "" {
			return "", false
		}
		if _, dup := seen[k]; dup {
			return "", false
		}
		seen[k] = struct{}{}
	}
	a := strings.TrimSpace(answer)
	for _, o := range options {
		if strings.EqualFold(strings.TrimSpace(o), a) {
			return strings.TrimSpace(o), true
		}
	}
	letter := strings.ToLower(strings.TrimRight(a, ").: "))
	if len(letter) == 1 && letter[0] >= 'a' && letter[0] <= 'd' {
		return strings.TrimSpace(options[letter[0]-'a']), true
	}
	return "", false
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.TrimSpace(s))
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
