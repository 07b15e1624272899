// Package sheet reads listing URLs from and writes item reports to CSV and
// XLSX files.
package sheet

import (
	"math"
	"strconv"
	"time"

	"github.com/sells-group/arbitrage-cli/internal/model"
)

// ItemHeader is the column layout of an item export.
var ItemHeader = []string{
	"id",
	"source_url",
	"status",
	"score",
	"reasoning",
	"latitude",
	"longitude",
	"images",
	"images_analyzed",
	"images_with_hallmarks",
	"spot_price_per_ounce",
	"item_silver_value",
	"max_buy_price",
	"roi_percent",
	"created_at",
	"updated_at",
}

// cell is one exported value. Numeric cells keep their number so XLSX can
// store them as numbers.
type cell struct {
	text  string
	num   float64
	isNum bool
}

func text(s string) cell { return cell{text: s} }

func number(f float64) cell {
	return cell{text: formatFloat(f), num: f, isNum: !math.IsInf(f, 0) && !math.IsNaN(f)}
}

func optionalNumber(f *float64) cell {
	if f == nil {
		return cell{}
	}
	return number(*f)
}

func (c cell) String() string { return c.text }

func itemCells(it model.Item) []cell {
	var score cell
	if it.Score != nil {
		score = number(float64(*it.Score))
	}

	analyzed, hallmarks := 0, 0
	for _, a := range it.ImageAnalyses {
		if a.Failed() {
			continue
		}
		analyzed++
		if a.Findings != nil && a.Findings.HallmarksDetected {
			hallmarks++
		}
	}

	spot, value, maxBuy, roi := cell{}, cell{}, cell{}, cell{}
	if v := it.Valuation; v != nil {
		spot = number(v.SpotPricePerOunce)
		value = number(v.SilverValue)
		maxBuy = number(v.MaxBuyPrice)
		roi = number(v.ROIPercent)
	}

	return []cell{
		text(it.ID),
		text(it.SourceURL),
		text(string(it.Status)),
		score,
		text(it.Reasoning),
		optionalNumber(it.Latitude),
		optionalNumber(it.Longitude),
		number(float64(len(it.ImageURLs))),
		number(float64(analyzed)),
		number(float64(hallmarks)),
		spot,
		value,
		maxBuy,
		roi,
		text(formatTime(it.CreatedAt)),
		text(formatTime(it.UpdatedAt)),
	}
}

// ItemRow flattens an item into ItemHeader order.
func ItemRow(it model.Item) []string {
	cells := itemCells(it)
	row := make([]string, len(cells))
	for i, c := range cells {
		row[i] = c.String()
	}
	return row
}

func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case math.IsNaN(f):
		return ""
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
