// Package classify scores listing descriptions for silver potential and
// extracts the address, weight and purity they mention.
package classify

import (
	"context"
	_ "embed"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/arbitrage-cli/internal/model"
	"github.com/sells-group/arbitrage-cli/internal/resilience"
	"github.com/sells-group/arbitrage-cli/pkg/anthropic"
)

//go:embed schema.json
var schemaJSON []byte

var responseSchema = anthropic.MustCompileSchema("classification.json", schemaJSON)

// Classifier turns free text into a Classification.
type Classifier interface {
	Classify(ctx context.Context, text string) (model.Classification, error)
}

// LLMClassifier classifies descriptions with Claude.
type LLMClassifier struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	rubric    *Rubric
	guard     *resilience.Guard
}

// Option configures an LLMClassifier.
type Option func(*LLMClassifier)

// WithRubric replaces the embedded rubric.
func WithRubric(r *Rubric) Option {
	return func(c *LLMClassifier) { c.rubric = r }
}

// WithGuard routes calls through a resilience guard.
func WithGuard(g *resilience.Guard) Option {
	return func(c *LLMClassifier) { c.guard = g }
}

// New creates an LLMClassifier.
func New(client anthropic.Client, model string, maxTokens int64, opts ...Option) *LLMClassifier {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	c := &LLMClassifier{
		client:    client,
		model:     model,
		maxTokens: maxTokens,
		rubric:    DefaultRubric(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type response struct {
	Score       int      `json:"score"`
	Reasoning   string   `json:"reasoning"`
	Address     *string  `json:"address"`
	WeightGrams *float64 `json:"weight_grams"`
	Purity      *float64 `json:"purity"`
}

// Classify sends text to the model and validates its verdict.
func (c *LLMClassifier) Classify(ctx context.Context, text string) (model.Classification, error) {
	if strings.TrimSpace(text) == "" {
		return model.Classification{}, eris.New("classify: empty description")
	}

	temp := 0.2
	req := anthropic.MessageRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		System:      []anthropic.SystemBlock{{Text: c.rubric.SystemPrompt(), Cache: true}},
		Messages:    []anthropic.Message{{Role: "user", Content: text}},
		Temperature: &temp,
	}

	resp, err := resilience.Call(ctx, c.guard, "anthropic", func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return c.client.CreateMessage(ctx, req)
	})
	if err != nil {
		return model.Classification{}, eris.Wrap(err, "classify: create message")
	}
	resp.Usage.LogCost(c.model, "classify")

	var out response
	if err := responseSchema.Decode(resp.Text(), &out); err != nil {
		return model.Classification{}, eris.Wrap(err, "classify: decode verdict")
	}

	cls := model.Classification{
		Score:       out.Score,
		Reasoning:   strings.TrimSpace(out.Reasoning),
		WeightGrams: out.WeightGrams,
		Purity:      normalizePurity(out.Purity),
	}
	if out.Address != nil {
		cls.Address = model.NewAddress(*out.Address)
	}

	zap.L().Debug("classify: verdict",
		zap.Int("score", cls.Score),
		zap.Bool("address", cls.Address.Usable()),
		zap.Bool("valuable", cls.Valuable()),
	)
	return cls, nil
}

// normalizePurity converts millesimal fineness (925) to a fraction (0.925).
func normalizePurity(p *float64) *float64 {
	if p == nil || *p <= 1 {
		return p
	}
	v := *p / 1000
	return &v
}
