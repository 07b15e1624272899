package store

import (
	"encoding/json"

	sq "github.com/Masterminds/squirrel"
	"github.com/rotisserie/eris"

	"github.com/sells-group/arbitrage-cli/internal/model"
)

// itemColumns is the column order shared by every item SELECT.
const itemColumns = `id, source_url, status, description, image_urls, score, reasoning, latitude, longitude, image_analyses, valuation, version, created_at, updated_at`

// listItemsQuery renders the ListItems statement with the backend's
// placeholder format. Limit and offset are inlined as literals.
func listItemsQuery(filter ItemFilter, format sq.PlaceholderFormat) (string, []any, error) {
	q := sq.Select(itemColumns).
		From("items").
		OrderBy("created_at DESC").
		Limit(uint64(filter.limit()))
	if filter.Status != "" {
		q = q.Where(sq.Eq{"status": string(filter.Status)})
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}
	return q.PlaceholderFormat(format).ToSql()
}

// encodedOutputs holds the JSON-encoded stage outputs of an item.
type encodedOutputs struct {
	imageURLs     []byte
	imageAnalyses []byte
	valuation     []byte
}

func encodeOutputs(it *model.Item) (encodedOutputs, error) {
	var out encodedOutputs
	var err error

	urls := it.ImageURLs
	if urls == nil {
		urls = []string{}
	}
	if out.imageURLs, err = json.Marshal(urls); err != nil {
		return out, eris.Wrap(err, "encode image urls")
	}

	analyses := it.ImageAnalyses
	if analyses == nil {
		analyses = []model.ImageAnalysis{}
	}
	if out.imageAnalyses, err = json.Marshal(analyses); err != nil {
		return out, eris.Wrap(err, "encode image analyses")
	}

	if it.Valuation != nil {
		if out.valuation, err = json.Marshal(it.Valuation); err != nil {
			return out, eris.Wrap(err, "encode valuation")
		}
	}
	return out, nil
}

func decodeOutputs(it *model.Item, imageURLs, imageAnalyses, valuation []byte) error {
	it.ImageURLs = []string{}
	if len(imageURLs) > 0 {
		if err := json.Unmarshal(imageURLs, &it.ImageURLs); err != nil {
			return eris.Wrap(err, "decode image urls")
		}
	}
	it.ImageAnalyses = []model.ImageAnalysis{}
	if len(imageAnalyses) > 0 {
		if err := json.Unmarshal(imageAnalyses, &it.ImageAnalyses); err != nil {
			return eris.Wrap(err, "decode image analyses")
		}
	}
	it.Valuation = nil
	if len(valuation) > 0 && string(valuation) != "null" {
		it.Valuation = &model.Valuation{}
		if err := json.Unmarshal(valuation, it.Valuation); err != nil {
			return eris.Wrap(err, "decode valuation")
		}
	}
	return nil
}
