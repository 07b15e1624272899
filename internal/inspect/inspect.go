// Package inspect looks for silver hallmarks in listing photos.
package inspect

import (
	"context"
	_ "embed"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/arbitrage-cli/internal/model"
	"github.com/sells-group/arbitrage-cli/internal/resilience"
	"github.com/sells-group/arbitrage-cli/pkg/anthropic"
)

//go:embed schema.json
var schemaJSON []byte

var findingsSchema = anthropic.MustCompileSchema("hallmarks.json", schemaJSON)

const systemPrompt = `You are a precious-metals assayer examining photos from marketplace listings.
Look for hallmarks, purity stamps (925, 800, STERLING, EPNS, EP, A1), maker's marks, assay office marks and date letters.
Return only a JSON object with keys:
"hallmarks_detected" (boolean), "marks" (array of the marks you can read),
"metal" ("silver", "silver-plate", "gold", "unknown" or null), "purity_mark" (string or null),
"estimated_purity" (fraction 0-1 or null, e.g. 0.925 for sterling, 0 for plate),
"maker" (string or null), "confidence" (0-1), "notes" (one sentence or null).`

// Inspector analyzes one image.
type Inspector interface {
	Inspect(ctx context.Context, imageURL string) (*model.HallmarkFindings, error)
}

// VisionInspector downloads images and asks Claude to read their marks.
type VisionInspector struct {
	client     anthropic.Client
	model      string
	maxTokens  int64
	downloader *Downloader
	guard      *resilience.Guard
}

// New creates a VisionInspector. imageTimeout bounds each download.
func New(client anthropic.Client, model string, maxTokens int64, imageTimeout time.Duration, guard *resilience.Guard) *VisionInspector {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &VisionInspector{
		client:     client,
		model:      model,
		maxTokens:  maxTokens,
		downloader: NewDownloader(imageTimeout, ""),
		guard:      guard,
	}
}

type findings struct {
	HallmarksDetected bool     `json:"hallmarks_detected"`
	Marks             []string `json:"marks"`
	Metal             *string  `json:"metal"`
	PurityMark        *string  `json:"purity_mark"`
	EstimatedPurity   *float64 `json:"estimated_purity"`
	Maker             *string  `json:"maker"`
	Confidence        float64  `json:"confidence"`
	Notes             *string  `json:"notes"`
}

// Inspect downloads imageURL and returns what the model recognized. Download,
// provider and decode failures are all returned as errors.
func (v *VisionInspector) Inspect(ctx context.Context, imageURL string) (*model.HallmarkFindings, error) {
	if v.client == nil {
		return nil, eris.New("inspect: vision client not configured")
	}

	img, err := v.downloader.Download(ctx, imageURL)
	if err != nil {
		return nil, err
	}

	resp, err := resilience.Call(ctx, v.guard, "anthropic", func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return v.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     v.model,
			MaxTokens: v.maxTokens,
			System:    []anthropic.SystemBlock{{Text: systemPrompt, Cache: true}},
			Messages: []anthropic.Message{{
				Role:    "user",
				Content: "Identify any hallmarks in this photo.",
				Images:  []anthropic.Image{{MediaType: img.MediaType, Data: img.Data}},
			}},
		})
	})
	if err != nil {
		return nil, eris.Wrap(err, "inspect: vision request")
	}
	resp.Usage.LogCost(v.model, "inspect")

	var out findings
	if err := findingsSchema.Decode(resp.Text(), &out); err != nil {
		return nil, eris.Wrap(err, "inspect: decode findings")
	}

	marks := out.Marks
	if marks == nil {
		marks = []string{}
	}
	return &model.HallmarkFindings{
		HallmarksDetected: out.HallmarksDetected,
		Marks:             marks,
		Metal:             deref(out.Metal),
		PurityMark:        deref(out.PurityMark),
		EstimatedPurity:   out.EstimatedPurity,
		Maker:             deref(out.Maker),
		Confidence:        out.Confidence,
		Notes:             deref(out.Notes),
	}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
