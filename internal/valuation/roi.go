// Package valuation prices silver items against the live spot price.
package valuation

import (
	"math"

	"github.com/sells-group/arbitrage-cli/internal/model"
)

const (
	// GramsPerTroyOunceFactor converts a per-troy-ounce price to per-gram.
	GramsPerTroyOunceFactor = 0.0321507
	// RefiningFee is the flat share of melt value lost to refining.
	RefiningFee = 0.15
)

// Calculate computes melt value, buy ceiling, profit and ROI. ROI is +Inf
// when purchasePrice is zero.
func Calculate(spotPerOunce, weightGrams, purity, purchasePrice float64) model.Valuation {
	pricePerGram := spotPerOunce * GramsPerTroyOunceFactor
	silverValue := weightGrams * purity * pricePerGram
	maxBuy := silverValue * (1 - RefiningFee)
	profit := maxBuy - purchasePrice

	roi := math.Inf(1)
	if purchasePrice != 0 {
		roi = profit / purchasePrice * 100
	}

	return model.Valuation{
		SpotPricePerOunce: spotPerOunce,
		SilverValue:       silverValue,
		MaxBuyPrice:       maxBuy,
		PurchasePrice:     purchasePrice,
		Profit:            profit,
		ROIPercent:        roi,
	}
}
