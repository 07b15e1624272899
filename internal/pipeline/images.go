package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/arbitrage-cli/internal/model"
)

// inspectImages analyzes each URL independently and returns one entry per
// URL in input order. A failure is recorded on its entry and never cancels
// the other inspections.
func (r *run) inspectImages(urls []string) []model.ImageAnalysis {
	results := make([]model.ImageAnalysis, len(urls))

	// Plain Group, not WithContext: one image's error must not cancel the rest.
	var g errgroup.Group
	g.SetLimit(r.driver.imageConcurrency)
	for i, u := range urls {
		g.Go(func() error {
			results[i] = r.inspectOne(r.stage, u)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (r *run) inspectOne(ctx context.Context, url string) (res model.ImageAnalysis) {
	res.ImageURL = url
	defer func() {
		if p := recover(); p != nil {
			res.Findings = nil
			res.Error = fmt.Sprintf("inspection panicked: %v", p)
			r.log.Error("pipeline: image inspection panicked", zap.String("image_url", url), zap.Any("panic", p))
		}
	}()

	findings, err := r.driver.stages.Inspector.Inspect(ctx, url)
	if err != nil {
		r.log.Warn("pipeline: image inspection failed", zap.String("image_url", url), zap.Error(err))
		res.Error = err.Error()
		return res
	}
	if findings == nil {
		res.Error = "no findings returned"
		return res
	}
	res.Findings = findings
	return res
}
