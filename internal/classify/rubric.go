package classify

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed rubric.yaml
var rubricYAML []byte

// Rubric drives the classifier's system prompt.
type Rubric struct {
	Role  string `yaml:"role"`
	Score struct {
		Min int `yaml:"min"`
		Max int `yaml:"max"`
	} `yaml:"score"`
	PositiveKeywords []string           `yaml:"positive_keywords"`
	NegativeKeywords []string           `yaml:"negative_keywords"`
	PurityExamples   map[string]float64 `yaml:"purity_examples"`
}

// LoadRubric parses a YAML rubric.
func LoadRubric(data []byte) (*Rubric, error) {
	var r Rubric
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, eris.Wrap(err, "classify: parse rubric")
	}
	if r.Score.Min <= 0 || r.Score.Max <= r.Score.Min {
		return nil, eris.Errorf("classify: invalid score range %d-%d", r.Score.Min, r.Score.Max)
	}
	return &r, nil
}

// DefaultRubric returns the embedded rubric.
func DefaultRubric() *Rubric {
	r, err := LoadRubric(rubricYAML)
	if err != nil {
		panic(fmt.Sprintf("load rubric.yaml: %v", err))
	}
	return r
}

// SystemPrompt renders the rubric as classifier instructions.
func (r *Rubric) SystemPrompt() string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(r.Role))
	b.WriteString("\n\nAnalyze the listing text and return only a JSON object with these keys:\n")
	fmt.Fprintf(&b, "1. \"score\": an integer from %d to %d, where %d is the highest likelihood that the listing contains high-purity, valuable silver. ",
		r.Score.Min, r.Score.Max, r.Score.Max)
	fmt.Fprintf(&b, "Raise the score for keywords like %s. ", quoteList(r.PositiveKeywords))
	fmt.Fprintf(&b, "Lower it for keywords like %s.\n", quoteList(r.NegativeKeywords))
	b.WriteString("2. \"reasoning\": one sentence explaining the score.\n")
	b.WriteString("3. \"address\": the full street address of the sale if mentioned, otherwise \"Not found\".\n")
	b.WriteString("4. \"weight_grams\": the estimated silver weight in grams if mentioned, otherwise null.\n")
	b.WriteString("5. \"purity\": the silver purity as a fraction if mentioned or implied")
	if len(r.PurityExamples) > 0 {
		names := make([]string, 0, len(r.PurityExamples))
		for k := range r.PurityExamples {
			names = append(names, k)
		}
		sort.Strings(names)
		parts := make([]string, len(names))
		for i, n := range names {
			parts[i] = fmt.Sprintf("%g for %s", r.PurityExamples[n], n)
		}
		fmt.Fprintf(&b, " (e.g. %s)", strings.Join(parts, ", "))
	}
	b.WriteString(", otherwise null.\n")
	return b.String()
}

func quoteList(words []string) string {
	q := make([]string, len(words))
	for i, w := range words {
		q[i] = "'" + w + "'"
	}
	return strings.Join(q, ", ")
}
