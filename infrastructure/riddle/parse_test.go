package riddle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-riddler/internal/domain"
)

func TestParseRecord(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		category domain.Category
		want     domain.Riddle
	}{
		{
			name:     "plain object",
			raw:      `{"riddle": "What has keys but can't open locks?", "answer": "A piano"}`,
			category: domain.CategoryWord,
			want:     domain.Riddle{Category: domain.CategoryWord, Prompt: "What has keys but can't open locks?", Answer: "A piano"},
		},
		{
			name:     "json code fence with prose",
			raw:      "Sure! Here you go:\n```json\n{\"riddle\": \"What runs but never walks?\", \"answer\": \"A river\"}\n```\nEnjoy.",
			category: domain.CategoryWord,
			want:     domain.Riddle{Category: domain.CategoryWord, Prompt: "What runs but never walks?", Answer: "A river"},
		},
		{
			name:     "bare fence",
			raw:      "```\n{\"riddle\": \"r\", \"answer\": \"a\"}\n```",
			category: domain.CategoryWord,
			want:     domain.Riddle{Category: domain.CategoryWord, Prompt: "r", Answer: "a"},
		},
		{
			name:     "braces inside strings",
			raw:      `noise {"riddle": "What is {x} in {x} = 2?", "answer": "two"} trailing }`,
			category: domain.CategoryWord,
			want:     domain.Riddle{Category: domain.CategoryWord, Prompt: "What is {x} in {x} = 2?", Answer: "two"},
		},
		{
			name:     "smart quotes",
			raw:      `{“riddle”: “What goes up but never comes down?”, “answer”: “Your age”}`,
			category: domain.CategoryWord,
			want:     domain.Riddle{Category: domain.CategoryWord, Prompt: "What goes up but never comes down?", Answer: "Your age"},
		},
		{
			name:     "trailing comma",
			raw:      "{\"riddle\": \"r\",\n \"answer\": \"a\",\n}",
			category: domain.CategoryWord,
			want:     domain.Riddle{Category: domain.CategoryWord, Prompt: "r", Answer: "a"},
		},
		{
			name:     "numeric arithmetic answer",
			raw:      `{"riddle": "What is 6 x 7?", "answer": 42.0, "solution": "6 x 7 = 42"}`,
			category: domain.CategoryArithmetic,
			want:     domain.Riddle{Category: domain.CategoryArithmetic, Prompt: "What is 6 x 7?", Answer: "42", Explanation: "6 x 7 = 42"},
		},
		{
			name:     "arithmetic answer in prose",
			raw:      `{"riddle": "How many loaves?", "answer": "1,200 loaves", "explanation": "400 x 3"}`,
			category: domain.CategoryArithmetic,
			want:     domain.Riddle{Category: domain.CategoryArithmetic, Prompt: "How many loaves?", Answer: "1200", Explanation: "400 x 3"},
		},
		{
			name:     "math label on arithmetic riddle",
			raw:      `{"category": "Math", "riddle": "What is 3 + 4?", "answer": "7"}`,
			category: domain.CategoryArithmetic,
			want:     domain.Riddle{Category: domain.CategoryArithmetic, Prompt: "What is 3 + 4?", Answer: "7"},
		},
		{
			name:     "matching word label",
			raw:      `{"category": "word", "riddle": "r", "answer": "a"}`,
			category: domain.CategoryWord,
			want:     domain.Riddle{Category: domain.CategoryWord, Prompt: "r", Answer: "a"},
		},
		{
			name:     "solution preferred over explanation",
			raw:      `{"riddle": "r", "answer": "a", "solution": "s", "explanation": "e"}`,
			category: domain.CategoryWord,
			want:     domain.Riddle{Category: domain.CategoryWord, Prompt: "r", Answer: "a", Explanation: "s"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRecord(tt.raw, "openai", tt.category)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRecord_Errors(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		category domain.Category
		reason   string
	}{
		{name: "no object", raw: "I cannot do that.", category: domain.CategoryWord, reason: "no JSON object in response"},
		{name: "unbalanced", raw: `{"riddle": "r", "answer": "a"`, category: domain.CategoryWord, reason: "no JSON object in response"},
		{name: "not json", raw: `{riddle: r}`, category: domain.CategoryWord, reason: "invalid JSON"},
		{name: "missing answer", raw: `{"riddle": "r"}`, category: domain.CategoryWord, reason: "missing required field"},
		{name: "blank riddle", raw: `{"riddle": "  ", "answer": "a"}`, category: domain.CategoryWord, reason: "missing required field"},
		{name: "answer is a list", raw: `{"riddle": "r", "answer": ["a"]}`, category: domain.CategoryWord, reason: "answer is not a scalar"},
		{name: "label disagrees with request", raw: `{"category": "math", "riddle": "r", "answer": "a"}`, category: domain.CategoryWord, reason: "riddle labelled arithmetic, want word"},
		{name: "unknown label", raw: `{"category": "logic", "riddle": "r", "answer": "a"}`, category: domain.CategoryWord, reason: "unknown category label"},
		{name: "arithmetic without number", raw: `{"riddle": "r", "answer": "many"}`, category: domain.CategoryArithmetic, reason: `arithmetic answer "many" has no number`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRecord(tt.raw, "groq", tt.category)
			require.Error(t, err)

			var pe *domain.ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, "groq", pe.Source)
			assert.Equal(t, tt.reason, pe.Reason)
		})
	}
}

func TestRepairJSON(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{in: `{"a": 1,}`, want: `{"a": 1}`},
		{in: `{"a": [1, 2, ]}`, want: `{"a": [1, 2 ]}`},
		{in: `{"a": "x,}"}`, want: `{"a": "x,}"}`},
		{in: `{‘a’: “b”}`, want: `{'a': "b"}`},
		{in: `{"a": "say \"hi\",", }`, want: `{"a": "say \"hi\"," }`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, repairJSON(tt.in), tt.in)
	}
}

func TestNormalizeNumber(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{in: "42", want: "42", wantOK: true},
		{in: "42.0", want: "42", wantOK: true},
		{in: "1,200.50", want: "1200.5", wantOK: true},
		{in: "-7", want: "-7", wantOK: true},
		{in: "The answer is 19 loaves.", want: "19", wantOK: true},
		{in: "0.5", want: "0.5", wantOK: true},
		{in: "007", want: "7", wantOK: true},
		{in: "0", want: "0", wantOK: true},
		{in: "-0.0", want: "0", wantOK: true},
		{in: "3 apples and 4 pears", want: "3", wantOK: true},
		{in: "12.", want: "12", wantOK: true},
		{in: "none", wantOK: false},
		{in: "", wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := NormalizeNumber(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
