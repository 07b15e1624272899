package model

import (
	"encoding/json"
	"math"
	"time"

	"github.com/rotisserie/eris"
)

// ItemStatus represents the processing state of a discovered item.
type ItemStatus string

const (
	StatusPending         ItemStatus = "pending"
	StatusScraping        ItemStatus = "scraping"
	StatusAnalyzingText   ItemStatus = "analyzing_text"
	StatusGeocoding       ItemStatus = "geocoding"
	StatusAnalyzingImages ItemStatus = "analyzing_images"
	StatusCalculatingROI  ItemStatus = "calculating_roi"
	StatusCompleted       ItemStatus = "completed"
	StatusFailedScraping  ItemStatus = "failed_scraping"
	StatusFailed          ItemStatus = "failed"
)

// AllStatuses lists every status in pipeline order, terminal states last.
var AllStatuses = []ItemStatus{
	StatusPending,
	StatusScraping,
	StatusAnalyzingText,
	StatusGeocoding,
	StatusAnalyzingImages,
	StatusCalculatingROI,
	StatusCompleted,
	StatusFailedScraping,
	StatusFailed,
}

// IsTerminal reports whether the pipeline has finished with the item.
func (s ItemStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailedScraping, StatusFailed:
		return true
	}
	return false
}

// Valid reports whether s is a known status.
func (s ItemStatus) Valid() bool {
	for _, v := range AllStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Item is a listing submitted for evaluation as a silver arbitrage candidate.
type Item struct {
	ID            string          `json:"id"`
	SourceURL     string          `json:"source_url"`
	Status        ItemStatus      `json:"status"`
	Description   string          `json:"description,omitempty"`
	ImageURLs     []string        `json:"image_urls"`
	Score         *int            `json:"score,omitempty"`
	Reasoning     string          `json:"reasoning,omitempty"`
	Latitude      *float64        `json:"latitude,omitempty"`
	Longitude     *float64        `json:"longitude,omitempty"`
	ImageAnalyses []ImageAnalysis `json:"image_analyses"`
	Valuation     *Valuation      `json:"valuation,omitempty"`
	Version       int64           `json:"version"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// NewItem returns a pending item for url. The caller assigns the ID.
func NewItem(id, url string, now time.Time) *Item {
	return &Item{
		ID:            id,
		SourceURL:     url,
		Status:        StatusPending,
		ImageURLs:     []string{},
		ImageAnalyses: []ImageAnalysis{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// ResetOutputs clears every stage output so a re-run starts from scratch.
func (it *Item) ResetOutputs() {
	it.Description = ""
	it.ImageURLs = []string{}
	it.Score = nil
	it.Reasoning = ""
	it.Latitude = nil
	it.Longitude = nil
	it.ImageAnalyses = []ImageAnalysis{}
	it.Valuation = nil
}

// SetLocation sets both coordinates together.
func (it *Item) SetLocation(lat, lng float64) {
	it.Latitude = &lat
	it.Longitude = &lng
}

// HasLocation reports whether the item has been geocoded.
func (it *Item) HasLocation() bool {
	return it.Latitude != nil && it.Longitude != nil
}

// ImageAnalysis is the outcome of inspecting one listing image. Exactly one
// of Findings and Error is set.
type ImageAnalysis struct {
	ImageURL string            `json:"image_url"`
	Findings *HallmarkFindings `json:"findings,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// Failed reports whether the inspection of this image failed.
func (a ImageAnalysis) Failed() bool { return a.Error != "" }

// HallmarkFindings is what the image inspector recognized in a photo.
type HallmarkFindings struct {
	HallmarksDetected bool     `json:"hallmarks_detected"`
	Marks             []string `json:"marks"`
	Metal             string   `json:"metal,omitempty"`
	PurityMark        string   `json:"purity_mark,omitempty"`
	EstimatedPurity   *float64 `json:"estimated_purity,omitempty"`
	Maker             string   `json:"maker,omitempty"`
	Confidence        float64  `json:"confidence"`
	Notes             string   `json:"notes,omitempty"`
}

// Valuation is the silver melt-value appraisal of an item.
type Valuation struct {
	SpotPricePerOunce float64 `json:"spot_price_per_ounce"`
	SilverValue       float64 `json:"item_silver_value"`
	MaxBuyPrice       float64 `json:"max_buy_price"`
	PurchasePrice     float64 `json:"purchase_price"`
	Profit            float64 `json:"profit"`
	ROIPercent        float64 `json:"-"`
}

// valuationJSON carries ROIPercent as a raw token because encoding/json
// rejects IEEE infinities.
type valuationJSON struct {
	SpotPricePerOunce float64         `json:"spot_price_per_ounce"`
	SilverValue       float64         `json:"item_silver_value"`
	MaxBuyPrice       float64         `json:"max_buy_price"`
	PurchasePrice     float64         `json:"purchase_price"`
	Profit            float64         `json:"profit"`
	ROIPercent        json.RawMessage `json:"roi_percent"`
}

// MarshalJSON encodes infinite ROI as the strings "Infinity" / "-Infinity".
func (v Valuation) MarshalJSON() ([]byte, error) {
	var roi json.RawMessage
	switch {
	case math.IsInf(v.ROIPercent, 1):
		roi = json.RawMessage(`"Infinity"`)
	case math.IsInf(v.ROIPercent, -1):
		roi = json.RawMessage(`"-Infinity"`)
	case math.IsNaN(v.ROIPercent):
		roi = json.RawMessage(`null`)
	default:
		b, err := json.Marshal(v.ROIPercent)
		if err != nil {
			return nil, err
		}
		roi = b
	}
	return json.Marshal(valuationJSON{
		SpotPricePerOunce: v.SpotPricePerOunce,
		SilverValue:       v.SilverValue,
		MaxBuyPrice:       v.MaxBuyPrice,
		PurchasePrice:     v.PurchasePrice,
		Profit:            v.Profit,
		ROIPercent:        roi,
	})
}

// UnmarshalJSON accepts a number, null (NaN) or the "Infinity" spellings for
// roi_percent. Any other string is an error.
func (v *Valuation) UnmarshalJSON(data []byte) error {
	var raw valuationJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v.SpotPricePerOunce = raw.SpotPricePerOunce
	v.SilverValue = raw.SilverValue
	v.MaxBuyPrice = raw.MaxBuyPrice
	v.PurchasePrice = raw.PurchasePrice
	v.Profit = raw.Profit
	v.ROIPercent = 0

	if len(raw.ROIPercent) == 0 || string(raw.ROIPercent) == "null" {
		v.ROIPercent = math.NaN()
		return nil
	}
	var s string
	if err := json.Unmarshal(raw.ROIPercent, &s); err == nil {
		switch s {
		case "Infinity", "inf", "+Infinity":
			v.ROIPercent = math.Inf(1)
		case "-Infinity", "-inf":
			v.ROIPercent = math.Inf(-1)
		default:
			return eris.Errorf("model: unknown roi_percent %q", s)
		}
		return nil
	}
	return json.Unmarshal(raw.ROIPercent, &v.ROIPercent)
}
