package riddle

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/go-riddler/internal/domain"
)

var validate = validator.New()

// record is the JSON shape a setter is asked to produce. Answer and
// solution are decoded loosely because models often emit numbers bare.
// Category is optional; models sometimes label the riddle unprompted.
type record struct {
	Category    string `json:"category"`
	Riddle      string `json:"riddle"`
	Answer      any    `json:"answer"`
	Solution    any    `json:"solution"`
	Explanation any    `json:"explanation"`
}

// smartQuotes maps typographic quotes to their ASCII forms.
var smartQuotes = strings.NewReplacer(
	"“", `"`, "”", `"`, "„", `"`, "‟", `"`,
	"‘", "'", "’", "'", "‚", "'", "‛", "'",
)

// ParseRecord turns a setter's raw response into a riddle of the requested
// category. It tolerates code fences, prose around the object, smart quotes
// and trailing commas. Any other malformation, or a category label that
// disagrees with the request, is a *domain.ParseError.
func ParseRecord(raw, source string, category domain.Category) (domain.Riddle, error) {
	obj, ok := extractJSONObject(raw)
	if !ok {
		return domain.Riddle{}, domain.NewParseError(source, "no JSON object in response", raw, nil)
	}

	var rec record
	if err := json.Unmarshal([]byte(obj), &rec); err != nil {
		repaired := repairJSON(obj)
		if err2 := json.Unmarshal([]byte(repaired), &rec); err2 != nil {
			return domain.Riddle{}, domain.NewParseError(source, "invalid JSON", raw, err)
		}
	}

	if rec.Category != "" {
		labelled, err := domain.ParseCategory(rec.Category)
		if err != nil {
			return domain.Riddle{}, domain.NewParseError(source, "unknown category label", raw, err)
		}
		if labelled != category {
			return domain.Riddle{}, domain.NewParseError(source,
				fmt.Sprintf("riddle labelled %s, want %s", labelled, category), raw, nil)
		}
	}

	answer, err := scalarString(rec.Answer)
	if err != nil {
		return domain.Riddle{}, domain.NewParseError(source, "answer is not a scalar", raw, err)
	}
	solution, err := scalarString(rec.Solution)
	if err != nil {
		return domain.Riddle{}, domain.NewParseError(source, "solution is not a scalar", raw, err)
	}
	if solution == "" {
		// Some models use "explanation" despite being asked for "solution".
		solution, _ = scalarString(rec.Explanation)
	}

	r := domain.Riddle{
		Category:    category,
		Prompt:      strings.TrimSpace(rec.Riddle),
		Answer:      strings.TrimSpace(answer),
		Explanation: strings.TrimSpace(solution),
	}
	if err := validate.Struct(r); err != nil {
		return domain.Riddle{}, domain.NewParseError(source, "missing required field", raw, err)
	}

	if category == domain.CategoryArithmetic {
		n, ok := NormalizeNumber(r.Answer)
		if !ok {
			return domain.Riddle{}, domain.NewParseError(source,
				fmt.Sprintf("arithmetic answer %q has no number", r.Answer), raw, nil)
		}
		r.Answer = n
	}

	return r, nil
}

func scalarString(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(t), nil
	default:
		return "", fmt.Errorf("unexpected %T", v)
	}
}

// extractJSONObject returns the first balanced {...} object in s, looking
// inside a fenced code block first when there is one.
func extractJSONObject(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if body, ok := fencedBlock(s); ok {
		if obj, ok := balancedObject(body); ok {
			return obj, true
		}
	}
	return balancedObject(s)
}

// fencedBlock returns the contents of the first ``` block, skipping a
// language tag on the opening line.
func fencedBlock(s string) (string, bool) {
	start := strings.Index(s, "```")
	if start < 0 {
		return "", false
	}
	rest := s[start+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 && !strings.Contains(rest[:nl], "{") {
		rest = rest[nl+1:]
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}

// balancedObject scans from the first '{' to its matching '}', ignoring
// braces inside string literals. Smart quotes count as string delimiters so
// objects written with them still balance.
func balancedObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i, r := range s[start:] {
		switch {
		case escaped:
			escaped = false
		case inString && r == '\\':
			escaped = true
		case r == '"', r == '“', r == '”':
			inString = !inString
		case inString:
		case r == '{':
			depth++
		case r == '}':
			depth--
			if depth == 0 {
				end := start + i + 1
				return s[start:end], true
			}
		}
	}
	return "", false
}

// repairJSON fixes the malformations models commonly produce: typographic
// quotes and trailing commas before a closing brace or bracket.
func repairJSON(s string) string {
	s = smartQuotes.Replace(s)

	var b strings.Builder
	b.Grow(len(s))
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case !inString && c == ',':
			j := i + 1
			for j < len(s) && strings.IndexByte(" \t\r\n", s[j]) >= 0 {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// NormalizeNumber extracts the first numeric literal from s and returns it in
// canonical form: thousands separators dropped, a leading minus kept, and a
// zero fractional part removed ("1,200.00" becomes "1200").
func NormalizeNumber(s string) (string, bool) {
	s = strings.ReplaceAll(s, ",", "")

	start := -1
	for i := 0; i < len(s); i++ {
		if isDigit(s[i]) {
			start = i
			break
		}
	}
	if start < 0 {
		return "", false
	}

	end := start
	for end < len(s) && isDigit(s[end]) {
		end++
	}
	if end+1 < len(s) && s[end] == '.' && isDigit(s[end+1]) {
		end++
		for end < len(s) && isDigit(s[end]) {
			end++
		}
	}

	negative := start > 0 && s[start-1] == '-'
	lit := s[start:end]
	if intPart, frac, ok := strings.Cut(lit, "."); ok {
		frac = strings.TrimRight(frac, "0")
		lit = intPart
		if frac != "" {
			lit += "." + frac
		}
	}
	lit = strings.TrimLeft(lit, "0")
	if lit == "" || lit[0] == '.' {
		lit = "0" + lit
	}
	if negative && lit != "0" {
		lit = "-" + lit
	}
	return lit, true
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
