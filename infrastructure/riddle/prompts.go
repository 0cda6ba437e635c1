package riddle

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/ahrav/go-riddler/internal/domain"
)

const (
	// DefaultWordPrompt asks a setter for a word riddle.
	DefaultWordPrompt = `Generate a short, original word riddle and its answer in JSON format with three fields: "riddle", "answer" and "solution".
The answer should be a single word or a short phrase. Leave "solution" empty.
Respond with the JSON object only, for example:
{"riddle": "What has cities, but no houses; forests, but no trees; and water, but no fish?", "answer": "A map", "solution": ""}`

	// DefaultArithmeticPrompt asks a setter for an arithmetic problem.
	DefaultArithmeticPrompt = `Generate an original arithmetic word problem in JSON format with three fields: "riddle", "answer" and "solution".
The answer must be a single number. The solution shows the working in one or two sentences.
Respond with the JSON object only, for example:
{"riddle": "A baker makes 12 loaves a day for 5 days and sells 41 of them. How many are left?", "answer": "19", "solution": "12 x 5 = 60 and 60 - 41 = 19."}`

	// DefaultSolverPrompt wraps a riddle for a solver.
	DefaultSolverPrompt = `Answer this riddle with just the answer, no explanation: {{.Riddle}}`
)

// PromptConfig holds the prompt templates. Empty fields use the defaults.
type PromptConfig struct {
	Word       string `yaml:"word" json:"word"`
	Arithmetic string `yaml:"arithmetic" json:"arithmetic"`
	Solver     string `yaml:"solver" json:"solver"`
}

// solverData is the data passed to the solver template.
type solverData struct {
	Riddle string
}

// setterData is the data passed to the setter templates.
type setterData struct {
	Category domain.Category
}

// prompts is a parsed PromptConfig.
type prompts struct {
	setter map[domain.Category]*template.Template
	solver *template.Template
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"lower": strings.ToLower,
		"trim":  strings.TrimSpace,
	}
}

func parsePrompts(cfg PromptConfig) (*prompts, error) {
	texts := map[string]string{
		"word":       orDefault(cfg.Word, DefaultWordPrompt),
		"arithmetic": orDefault(cfg.Arithmetic, DefaultArithmeticPrompt),
		"solver":     orDefault(cfg.Solver, DefaultSolverPrompt),
	}

	parsed := make(map[string]*template.Template, len(texts))
	for name, text := range texts {
		tmpl, err := template.New(name).Funcs(templateFuncs()).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s prompt template: %w", name, err)
		}
		parsed[name] = tmpl
	}

	return &prompts{
		setter: map[domain.Category]*template.Template{
			domain.CategoryWord:       parsed["word"],
			domain.CategoryArithmetic: parsed["arithmetic"],
		},
		solver: parsed["solver"],
	}, nil
}

func (p *prompts) setterPrompt(category domain.Category) (string, error) {
	if !category.Valid() {
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownCategory, category)
	}
	return execute(p.setter[category], setterData{Category: category})
}

func (p *prompts) solverPrompt(riddle string) (string, error) {
	return execute(p.solver, solverData{Riddle: riddle})
}

func execute(tmpl *template.Template, data any) (string, error) {
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateExecution, err)
	}
	return b.String(), nil
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
